// Package lipsync implements the node that drives a source video with a
// reference audio track through the remote lip-sync renderer.
package lipsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cicada/internal/chanjing"
	"cicada/internal/history"
	"cicada/internal/logging"
	"cicada/internal/media/ffprobe"
	"cicada/internal/node"
	"cicada/internal/progress"
)

// Name is the registry identifier for this node.
const Name = "lipsync"

// Models accepted by the renderer. Pro renders clearer teeth and
// noticeably more realistic motion.
const (
	ModelStandard = "cicada-lip-sync"
	ModelPro      = "cicada-lip-sync-pro"
)

// Playback strategies applied when the video is shorter than the audio.
const (
	BackwayForward = "forward"
	BackwayReverse = "reverse"
)

// Drive modes choosing the starting frame.
const (
	DriveNormal = "normal"
	DriveRandom = "random"
)

// Canvas used when local probing cannot read the video dimensions.
const (
	fallbackWidth  = 1080
	fallbackHeight = 1920
)

const (
	stagePrepare     = "prepare"
	stageUploadVideo = "upload video"
	stageUploadAudio = "upload audio"
	stageRender      = "render"
	stageFinish      = "finish"
)

// Node submits lip-sync render jobs and outputs the rendered video URL.
type Node struct{}

// New returns the lip-sync node.
func New() *Node { return &Node{} }

// Spec describes the node to the host.
func (n *Node) Spec() node.Spec {
	return node.Spec{
		Name:        Name,
		DisplayName: "Cicada Lip Sync",
		Category:    "Cicada AI",
		Inputs: []node.ParamSpec{
			{
				Name: "video", Label: "Video", Type: node.TypeMedia,
				Tooltip: "Source video: a file path or an upstream video object",
			},
			{
				Name: "audio", Label: "Audio", Type: node.TypeMedia,
				Tooltip: "Driving audio: a file path or an upstream audio object",
			},
			{
				Name: "model", Label: "Model", Type: node.TypeEnum,
				Options: []string{ModelStandard, ModelPro}, Default: ModelPro,
				Tooltip: "Pro renders clearer teeth and markedly more natural motion",
			},
			{
				Name: "backway", Label: "Playback", Type: node.TypeEnum,
				Options: []string{BackwayForward, BackwayReverse}, Default: BackwayForward,
				Tooltip: "When the video is shorter than the audio: loop forward, or play to the end and reverse back",
			},
			{
				Name: "drive_mode", Label: "Drive mode", Type: node.TypeEnum,
				Options: []string{DriveNormal, DriveRandom}, Default: DriveNormal,
				Tooltip: "Drive from the first frame or start at a random one",
			},
		},
		Outputs: []node.OutputSpec{{Name: "video_url", Type: "STRING"}},
	}
}

// Execute runs the render pipeline and records the invocation outcome.
func (n *Node) Execute(ctx context.Context, env *node.Env, in node.Inputs) (*node.Result, error) {
	started := time.Now()
	videoURL, detail, err := n.render(ctx, env, in)

	rec := history.Record{
		Node:       Name,
		Status:     history.StatusSucceeded,
		Detail:     detail,
		ResultURL:  videoURL,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		rec.Status = history.StatusFailed
		rec.Detail = err.Error()
	}
	env.RecordHistory(ctx, rec)

	if err != nil {
		return nil, err
	}
	return &node.Result{Values: []any{videoURL}}, nil
}

func (n *Node) render(ctx context.Context, env *node.Env, in node.Inputs) (string, string, error) {
	logger := logging.NewComponentLogger(env.Logger, "lipsync")
	rep := env.Reporter(
		progress.Stage{Name: stagePrepare, Weight: 5},
		progress.Stage{Name: stageUploadVideo, Weight: 15},
		progress.Stage{Name: stageUploadAudio, Weight: 10},
		progress.Stage{Name: stageRender, Weight: 65},
		progress.Stage{Name: stageFinish, Weight: 5},
	)
	rep.Start()
	rep.Advance(stagePrepare)

	videoPath, videoCleanup, err := node.ResolveMedia(in.Value("video"), node.KindVideo, env.Temp())
	if err != nil {
		return "", "", err
	}
	defer videoCleanup()
	audioPath, audioCleanup, err := node.ResolveMedia(in.Value("audio"), node.KindAudio, env.Temp())
	if err != nil {
		return "", "", err
	}
	defer audioCleanup()

	if err := node.VerifyLocalFile(videoPath, node.KindVideo); err != nil {
		return "", "", err
	}
	if err := node.VerifyLocalFile(audioPath, node.KindAudio); err != nil {
		return "", "", err
	}

	width, height := dimensions(ctx, env, videoPath, logger)
	model := in.Enum("model")
	logger.Info("starting lip sync render",
		logging.String("video", videoPath),
		logging.String("audio", audioPath),
		logging.String("model", model),
		logging.Int("width", width),
		logging.Int("height", height))

	rep.Advance(stageUploadVideo)
	videoUpload, err := env.Client.Upload(ctx, videoPath, chanjing.ServiceLipSyncVideo, rep.Update)
	if err != nil {
		return "", "", err
	}
	rep.Update(100, "video uploaded")

	rep.Advance(stageUploadAudio)
	audioUpload, err := env.Client.Upload(ctx, audioPath, chanjing.ServiceLipSyncAudio, rep.Update)
	if err != nil {
		return "", "", err
	}
	rep.Update(100, "audio uploaded")

	rep.Advance(stageRender)
	taskID, err := env.Client.CreateLipSync(ctx, chanjing.LipSyncRequest{
		VideoFileID:  videoUpload.FileID,
		AudioFileID:  audioUpload.FileID,
		Model:        modelValue(model),
		ScreenWidth:  width,
		ScreenHeight: height,
		Backway:      backwayValue(in.Enum("backway")),
		DriveMode:    driveModeValue(in.Enum("drive_mode")),
	})
	if err != nil {
		return "", "", err
	}

	result, err := env.Client.WaitLipSync(ctx, taskID, pollOptions(env), rep.Update)
	if err != nil {
		return "", "", err
	}

	rep.Advance(stageFinish)
	rep.Finish("lip sync complete")
	logger.Info("lip sync render complete",
		logging.String("task_id", taskID),
		logging.String("video_url", result.VideoURL),
		logging.Duration("video_duration", result.Duration))

	return result.VideoURL, fmt.Sprintf("model %s", model), nil
}

// dimensions probes the source canvas, falling back to a portrait
// default when the probe fails or the container reports no size.
func dimensions(ctx context.Context, env *node.Env, path string, logger *slog.Logger) (int, int) {
	result, err := ffprobe.Inspect(ctx, env.FFprobe(), path)
	if err != nil {
		logger.Warn("video probe failed, using default canvas",
			logging.Int("width", fallbackWidth),
			logging.Int("height", fallbackHeight),
			logging.Error(err))
		return fallbackWidth, fallbackHeight
	}
	if w, h, ok := result.VideoDimensions(); ok {
		return w, h
	}
	logger.Warn("video reports no dimensions, using default canvas",
		logging.Int("width", fallbackWidth),
		logging.Int("height", fallbackHeight))
	return fallbackWidth, fallbackHeight
}

func modelValue(model string) int {
	if model == ModelPro {
		return 1
	}
	return 0
}

func backwayValue(backway string) int {
	if backway == BackwayReverse {
		return 2
	}
	return 1
}

func driveModeValue(mode string) string {
	if mode == DriveRandom {
		return "random"
	}
	return ""
}

func pollOptions(env *node.Env) chanjing.PollOptions {
	opts := chanjing.PollOptions{}
	if env.Config != nil {
		opts.Timeout = time.Duration(env.Config.Jobs.LipSyncTimeoutSeconds) * time.Second
		opts.FailureBudget = env.Config.Jobs.FailureBudget
	}
	return opts
}
