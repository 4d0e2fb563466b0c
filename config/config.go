package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applies to every camera unless stated otherwise.
// Values mirror the shipped config.yaml.
type Defaults struct {
	OriginalWidth  int    `yaml:"original_width"`
	OriginalHeight int    `yaml:"original_height"`
	FrameWidth     int    `yaml:"frame_width"`
	FrameHeight    int    `yaml:"frame_height"`
	QRCodeSize     int    `yaml:"qrcode_size"`
	QueueSize      int    `yaml:"queue_size"`
	WarmupFrames   int    `yaml:"warmup_frames"`
	Timezone       string `yaml:"timezone"`
	PreviewPort    int    `yaml:"preview_port"`
}

// Camera is one simulated feed: which clip it replays, where its RTSP
// stream is served and where its events are sent.
type Camera struct {
	Video    string `yaml:"video"`
	VideoURL string `yaml:"video_url"`
	VideoMD5 string `yaml:"video_md5"`
	APIURL   string `yaml:"api_url"`
	RTSPPort int    `yaml:"rtsp_port"`
	FPS      int    `yaml:"fps"`
}

type File struct {
	Defaults Defaults           `yaml:"defaults"`
	Cameras  map[string]*Camera `yaml:"cameras"`
}

// Settings is the fully resolved configuration for one camera,
// everything the pipeline construction needs.
type Settings struct {
	CameraName     string
	Video          string
	VideoURL       string
	VideoMD5       string
	APIURL         string
	RTSPPort       int
	FPS            int
	OriginalWidth  int
	OriginalHeight int
	FrameWidth     int
	FrameHeight    int
	QRCodeSize     int
	QueueSize      int
	WarmupFrames   int
	Timezone       string
	PreviewPort    int
}

// FrameDuration is the nominal interval between output frames.
func (s *Settings) FrameDuration() time.Duration {
	return time.Second / time.Duration(s.FPS)
}

// Load reads the YAML config file and resolves settings for one camera.
// Missing required fields are returned as errors: the caller treats them as
// fatal before any pipeline stage is constructed.
func Load(path, cameraName string) (*Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var file File
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return Resolve(&file, cameraName)
}

// Resolve merges defaults with the named camera's block and validates it.
func Resolve(file *File, cameraName string) (*Settings, error) {
	cam, ok := file.Cameras[cameraName]
	if !ok {
		return nil, fmt.Errorf("config: camera %q not found (have %d cameras)", cameraName, len(file.Cameras))
	}
	if cam.Video == "" {
		return nil, fmt.Errorf("config: camera %q: video is required", cameraName)
	}
	if cam.APIURL == "" {
		return nil, fmt.Errorf("config: camera %q: api_url is required", cameraName)
	}

	s := &Settings{
		CameraName:     cameraName,
		Video:          cam.Video,
		VideoURL:       cam.VideoURL,
		VideoMD5:       cam.VideoMD5,
		APIURL:         cam.APIURL,
		RTSPPort:       cam.RTSPPort,
		FPS:            cam.FPS,
		OriginalWidth:  file.Defaults.OriginalWidth,
		OriginalHeight: file.Defaults.OriginalHeight,
		FrameWidth:     file.Defaults.FrameWidth,
		FrameHeight:    file.Defaults.FrameHeight,
		QRCodeSize:     file.Defaults.QRCodeSize,
		QueueSize:      file.Defaults.QueueSize,
		WarmupFrames:   file.Defaults.WarmupFrames,
		Timezone:       file.Defaults.Timezone,
		PreviewPort:    file.Defaults.PreviewPort,
	}

	// Same fallbacks the original deployment used.
	if s.RTSPPort == 0 {
		s.RTSPPort = 8554
	}
	if s.FPS == 0 {
		s.FPS = 15
	}
	if s.OriginalWidth == 0 {
		s.OriginalWidth = 640
	}
	if s.OriginalHeight == 0 {
		s.OriginalHeight = 800
	}
	if s.FrameWidth == 0 {
		s.FrameWidth = 640
	}
	if s.FrameHeight == 0 {
		s.FrameHeight = 480
	}
	if s.QRCodeSize == 0 {
		s.QRCodeSize = 160
	}
	if s.QueueSize == 0 {
		s.QueueSize = 30
	}
	if s.WarmupFrames == 0 {
		s.WarmupFrames = 90
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}

	if s.FPS < 1 || s.FPS > 60 {
		return nil, fmt.Errorf("config: camera %q: fps %d out of range 1-60", cameraName, s.FPS)
	}
	return s, nil
}
