// Package optimizer turns remote multimedia URLs into compressed local artifacts
package optimizer

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"inclusiveai-offline/pkg/checksum"
	"inclusiveai-offline/pkg/models"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ImageExtensions defines source extensions handled by the image pipeline
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

// AudioExtensions defines source extensions handled by the audio pipeline
var AudioExtensions = []string{".mp3", ".wav", ".ogg", ".m4a"}

// VideoExtensions defines source extensions handled by the video pipeline
var VideoExtensions = []string{".mp4", ".webm", ".avi", ".mov"}

// DocumentExtensions defines extensions copied byte-for-byte without transcoding
var DocumentExtensions = []string{".pdf", ".doc", ".docx", ".ppt", ".pptx"}

// Options configures a single Optimizer instance; paths are injected so each
// build is independently testable
type Options struct {
	TempDir      string
	ResourcesDir string

	MaxImageWidth  int
	MaxImageHeight int
	JPEGQuality    int
	AudioBitrate   int // kbps
	VideoBitrate   int // kbps

	CommandTimeout time.Duration
}

// Optimizer downloads and transcodes multimedia resources
type Optimizer struct {
	opts       Options
	runner     CommandRunner
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new optimizer with the given command runner
func New(opts Options, runner CommandRunner) *Optimizer {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 5 * time.Minute
	}
	return &Optimizer{
		opts:   opts,
		runner: runner,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: slog.Default(),
	}
}

// Classify determines the resource type from a URL's extension; anything
// without a known multimedia extension is a document
func Classify(rawURL string) models.ResourceType {
	ext := extensionOf(rawURL)
	switch {
	case contains(ImageExtensions, ext):
		return models.ResourceImage
	case contains(AudioExtensions, ext):
		return models.ResourceAudio
	case contains(VideoExtensions, ext):
		return models.ResourceVideo
	default:
		return models.ResourceDocument
	}
}

// IsResourceURL reports whether a string looks like a downloadable resource
// reference (used by the assembler's content scan)
func IsResourceURL(s string) bool {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return false
	}
	ext := extensionOf(s)
	return contains(ImageExtensions, ext) || contains(AudioExtensions, ext) ||
		contains(VideoExtensions, ext) || contains(DocumentExtensions, ext)
}

// Optimize downloads the resource at rawURL and produces a size-reduced local
// artifact with probed metadata. The raw scratch file is removed afterwards.
func (o *Optimizer) Optimize(ctx context.Context, rawURL string) (*models.OfflineResource, error) {
	resourceType := Classify(rawURL)
	id := checksum.ResourceID(rawURL)
	ext := extensionOf(rawURL)

	if err := os.MkdirAll(o.opts.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	if err := os.MkdirAll(o.opts.ResourcesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create resources dir: %w", err)
	}

	scratchPath := filepath.Join(o.opts.TempDir, id+ext)
	originalSize, err := o.download(ctx, rawURL, scratchPath)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", rawURL, err)
	}
	defer os.Remove(scratchPath)

	var outPath string
	var metadata models.ResourceMetadata

	switch resourceType {
	case models.ResourceImage:
		outPath = filepath.Join(o.opts.ResourcesDir, id+".jpg")
		metadata, err = o.optimizeImage(scratchPath, outPath)
	case models.ResourceAudio:
		outPath = filepath.Join(o.opts.ResourcesDir, id+".m4a")
		metadata, err = o.optimizeAudio(ctx, scratchPath, outPath)
	case models.ResourceVideo:
		outPath = filepath.Join(o.opts.ResourcesDir, id+".mp4")
		metadata, err = o.optimizeVideo(ctx, scratchPath, outPath)
	default:
		outPath = filepath.Join(o.opts.ResourcesDir, id+ext)
		err = copyFile(scratchPath, outPath)
		metadata = models.ResourceMetadata{Format: strings.TrimPrefix(ext, ".")}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to optimize %s: %w", rawURL, err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat optimized file: %w", err)
	}

	sum, err := checksum.SHA256File(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to checksum optimized file: %w", err)
	}

	o.logger.Debug("Resource optimized",
		"url", rawURL,
		"type", resourceType,
		"original_size", originalSize,
		"optimized_size", info.Size())

	return &models.OfflineResource{
		ID:            id,
		Type:          resourceType,
		URL:           rawURL,
		LocalPath:     outPath,
		Size:          originalSize,
		OptimizedSize: info.Size(),
		Checksum:      sum,
		Metadata:      metadata,
	}, nil
}

// download fetches the full resource bytes to a scratch path
func (o *Optimizer) download(ctx context.Context, rawURL, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch resource: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	file, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to write scratch file: %w", err)
	}

	return written, nil
}

// optimizeImage resizes to fit within the configured bounds without upscaling
// and re-encodes as JPEG
func (o *Optimizer) optimizeImage(srcPath, destPath string) (models.ResourceMetadata, error) {
	file, err := os.Open(srcPath)
	if err != nil {
		return models.ResourceMetadata{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	src, _, err := image.Decode(file)
	if err != nil {
		return models.ResourceMetadata{}, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), o.opts.MaxImageWidth, o.opts.MaxImageHeight)

	dst := src
	if width != bounds.Dx() || height != bounds.Dy() {
		resized := image.NewRGBA(image.Rect(0, 0, width, height))
		draw.CatmullRom.Scale(resized, resized.Bounds(), src, bounds, draw.Over, nil)
		dst = resized
	}

	out, err := os.Create(destPath)
	if err != nil {
		return models.ResourceMetadata{}, fmt.Errorf("failed to create output image: %w", err)
	}
	defer out.Close()

	if err := jpeg.Encode(out, dst, &jpeg.Options{Quality: o.opts.JPEGQuality}); err != nil {
		return models.ResourceMetadata{}, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	return models.ResourceMetadata{
		Width:  width,
		Height: height,
		Format: "jpeg",
	}, nil
}

// optimizeAudio re-encodes to AAC at the configured constant bitrate
func (o *Optimizer) optimizeAudio(ctx context.Context, srcPath, destPath string) (models.ResourceMetadata, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, o.opts.CommandTimeout)
	defer cancel()

	_, err := o.runner.Run(cmdCtx, "ffmpeg",
		"-y", "-i", srcPath,
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", o.opts.AudioBitrate),
		destPath,
	)
	if err != nil {
		return models.ResourceMetadata{}, err
	}

	return o.probe(ctx, destPath)
}

// optimizeVideo re-encodes to H.264/AAC at bounded bitrates, scaled down
func (o *Optimizer) optimizeVideo(ctx context.Context, srcPath, destPath string) (models.ResourceMetadata, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, o.opts.CommandTimeout)
	defer cancel()

	_, err := o.runner.Run(cmdCtx, "ffmpeg",
		"-y", "-i", srcPath,
		"-c:v", "libx264",
		"-b:v", fmt.Sprintf("%dk", o.opts.VideoBitrate),
		"-vf", "scale=640:480",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", o.opts.AudioBitrate),
		destPath,
	)
	if err != nil {
		return models.ResourceMetadata{}, err
	}

	return o.probe(ctx, destPath)
}

// ffprobeOutput mirrors the subset of ffprobe's JSON output we read
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecName string `json:"codec_name"`
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// probe reads duration, bitrate and codec from the optimized file via ffprobe
func (o *Optimizer) probe(ctx context.Context, mediaPath string) (models.ResourceMetadata, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, o.opts.CommandTimeout)
	defer cancel()

	output, err := o.runner.Run(cmdCtx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		mediaPath,
	)
	if err != nil {
		return models.ResourceMetadata{}, err
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(output, &probed); err != nil {
		return models.ResourceMetadata{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	metadata := models.ResourceMetadata{
		Format: probed.Format.FormatName,
	}
	if probed.Format.Duration != "" {
		if duration, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
			metadata.Duration = duration
		}
	}
	if probed.Format.BitRate != "" {
		if bitrate, err := strconv.ParseInt(probed.Format.BitRate, 10, 64); err == nil {
			metadata.Bitrate = bitrate
		}
	}
	for _, stream := range probed.Streams {
		if stream.CodecType == "video" {
			metadata.Codec = stream.CodecName
			metadata.Width = stream.Width
			metadata.Height = stream.Height
			break
		}
		if metadata.Codec == "" {
			metadata.Codec = stream.CodecName
		}
	}

	return metadata, nil
}

// fitWithin scales (w, h) down to fit inside (maxW, maxH) preserving aspect
// ratio, never upscaling
func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}

	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scaleW {
		scale = scaleH
	}

	width := int(float64(w) * scale)
	height := int(float64(h) * scale)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

func extensionOf(rawURL string) string {
	if parsed, err := url.Parse(rawURL); err == nil && parsed.Path != "" {
		return strings.ToLower(path.Ext(parsed.Path))
	}
	return strings.ToLower(path.Ext(rawURL))
}

func contains(list []string, ext string) bool {
	for _, e := range list {
		if e == ext {
			return true
		}
	}
	return false
}

func copyFile(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer src.Close()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dest.Close()

	if _, err := io.Copy(dest, src); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	return nil
}
