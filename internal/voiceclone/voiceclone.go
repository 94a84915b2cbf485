// Package voiceclone implements the node that clones a voice from
// reference audio and synthesizes speech with it.
//
// Clones are expensive and the platform keeps them around, so the node
// remembers finished clones in the voice cache keyed by audio content
// and model. A cache hit skips the upload and clone steps entirely once
// the remote voice is confirmed to still exist.
package voiceclone

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"cicada/internal/chanjing"
	"cicada/internal/fileutil"
	"cicada/internal/history"
	"cicada/internal/logging"
	"cicada/internal/media/audio"
	"cicada/internal/media/ffprobe"
	"cicada/internal/node"
	"cicada/internal/progress"
)

// Name is the registry identifier for this node.
const Name = "voiceclone"

// Clone models offered by the platform, newest first.
const (
	ModelTurbo    = "cicada3.0-turbo"
	ModelStandard = "cicada3.0"
	ModelLegacy   = "cicada1.0"
)

// Reference-audio bounds enforced by the clone endpoint. Audio over the
// cap is trimmed locally rather than rejected; the trim lands just under
// the cap so the remote check cannot round it back over.
const (
	minAudioSeconds = 15
	maxAudioSeconds = 300
	trimSeconds     = 299
)

// maxTextRunes is the longest text one synthesis call accepts.
const maxTextRunes = 4000

const (
	stagePrepare    = "prepare"
	stageUpload     = "upload audio"
	stageClone      = "clone voice"
	stageSynthesize = "synthesize"
	stageDownload   = "download"
)

// Node clones voices and synthesizes speech, outputting the audio and
// its result URL.
type Node struct{}

// New returns the voice clone node.
func New() *Node { return &Node{} }

// Spec describes the node to the host.
func (n *Node) Spec() node.Spec {
	return node.Spec{
		Name:        Name,
		DisplayName: "Cicada Voice Clone",
		Category:    "Cicada AI",
		Inputs: []node.ParamSpec{
			{
				Name: "audio", Label: "Reference audio", Type: node.TypeMedia,
				Tooltip: "Voice sample to clone: a file path or an upstream audio object, 15 seconds to 5 minutes",
			},
			{
				Name: "text", Label: "Text", Type: node.TypeText, Multiline: true,
				Tooltip: "Text to speak with the cloned voice, up to 4000 characters",
			},
			{
				Name: "model_type", Label: "Model", Type: node.TypeEnum,
				Options: []string{ModelTurbo, ModelStandard, ModelLegacy}, Default: ModelTurbo,
				Tooltip: "Turbo clones fastest; the legacy model is kept for voices created with it",
			},
			{
				Name: "speed", Label: "Speed", Type: node.TypeFloat,
				Default: 1.0, Min: 0.5, Max: 2.0, Step: 0.1,
				Tooltip: "Speaking rate of the synthesized audio",
			},
			{
				Name: "pitch", Label: "Pitch", Type: node.TypeFloat,
				Default: 1.0, Min: 0.1, Max: 3.0, Step: 0.1,
				Tooltip: "Pitch of the synthesized audio",
			},
			{
				Name: "use_cache", Label: "Reuse clones", Type: node.TypeToggle,
				Default: true,
				Tooltip: "Reuse an earlier clone when the same reference audio and model come around again",
			},
		},
		Outputs: []node.OutputSpec{
			{Name: "audio", Type: "AUDIO"},
			{Name: "audio_url", Type: "STRING"},
		},
	}
}

// outcome carries everything Execute records about a successful run.
type outcome struct {
	audio  any
	url    string
	path   string
	detail string
}

// Execute runs the clone and synthesis pipeline and records the
// invocation outcome.
func (n *Node) Execute(ctx context.Context, env *node.Env, in node.Inputs) (*node.Result, error) {
	started := time.Now()
	out, err := n.synthesize(ctx, env, in)

	rec := history.Record{
		Node:       Name,
		Status:     history.StatusSucceeded,
		Detail:     out.detail,
		ResultURL:  out.url,
		LocalPath:  out.path,
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
	return &node.Result{Values: []any{out.audio, out.url}}, nil
}

func (n *Node) synthesize(ctx context.Context, env *node.Env, in node.Inputs) (outcome, error) {
	logger := logging.NewComponentLogger(env.Logger, "voiceclone")

	text := strings.TrimSpace(in.String("text"))
	if text == "" {
		return outcome{}, chanjing.Wrap(chanjing.ErrBusiness, "check synthesis text", "text is empty", nil)
	}
	if count := utf8.RuneCountInString(text); count > maxTextRunes {
		return outcome{}, chanjing.Wrap(chanjing.ErrBusiness, "check synthesis text",
			fmt.Sprintf("text is %d characters, the platform caps one call at %d", count, maxTextRunes), nil)
	}

	rep := env.Reporter(
		progress.Stage{Name: stagePrepare, Weight: 5},
		progress.Stage{Name: stageUpload, Weight: 10},
		progress.Stage{Name: stageClone, Weight: 45},
		progress.Stage{Name: stageSynthesize, Weight: 30},
		progress.Stage{Name: stageDownload, Weight: 10},
	)
	rep.Start()
	rep.Advance(stagePrepare)

	audioPath, spoolCleanup, err := node.ResolveMedia(in.Value("audio"), node.KindAudio, env.Temp())
	if err != nil {
		return outcome{}, err
	}
	defer spoolCleanup()
	if err := node.VerifyLocalFile(audioPath, node.KindAudio); err != nil {
		return outcome{}, err
	}

	audioPath, trimCleanup, err := gateDuration(ctx, env, rep, audioPath, logger)
	if err != nil {
		return outcome{}, err
	}
	defer trimCleanup()

	contentHash, err := fileutil.HashFile(audioPath)
	if err != nil {
		return outcome{}, chanjing.Wrap(chanjing.ErrConfiguration, "clone voice", "hash reference audio", err)
	}

	model := in.Enum("model_type")
	useCache := in.Bool("use_cache") && env.Voices != nil
	logger.Info("starting voice synthesis",
		logging.String("audio", audioPath),
		logging.String("model", model),
		logging.Int("text_chars", utf8.RuneCountInString(text)))

	var voiceID string
	var ready bool
	if useCache {
		voiceID, ready = revalidate(ctx, env, contentHash, model, logger)
	}

	switch {
	case ready:
		rep.Advance(stageUpload)
		rep.Update(100, "reference audio already cloned")
		rep.Advance(stageClone)
		rep.Update(100, "reusing cached voice")
		logger.Info("reusing cached voice", logging.String("voice_id", voiceID))
	case voiceID != "":
		// Clone still processing remotely; skip the upload and wait for it.
		rep.Advance(stageUpload)
		rep.Update(100, "reference audio already cloned")
		rep.Advance(stageClone)
		if err := env.Client.WaitVoiceClone(ctx, voiceID, clonePollOptions(env), rep.Update); err != nil {
			return outcome{}, err
		}
	default:
		rep.Advance(stageUpload)
		upload, err := env.Client.Upload(ctx, audioPath, chanjing.ServicePromptAudio, rep.Update)
		if err != nil {
			return outcome{}, err
		}
		if upload.URL == "" {
			return outcome{}, chanjing.Wrap(chanjing.ErrBusiness, "clone voice", "upload returned no public URL", nil)
		}
		rep.Update(100, "reference audio uploaded")

		rep.Advance(stageClone)
		voiceID, err = env.Client.CreateVoiceClone(ctx, chanjing.VoiceCloneRequest{
			Name:      fmt.Sprintf("clone_%d", time.Now().Unix()),
			URL:       upload.URL,
			ModelType: model,
		})
		if err != nil {
			return outcome{}, err
		}
		if err := env.Client.WaitVoiceClone(ctx, voiceID, clonePollOptions(env), rep.Update); err != nil {
			return outcome{}, err
		}
		if useCache {
			if err := env.Voices.Store(contentHash, model, voiceID); err != nil {
				logger.Warn("voice cache store failed", logging.Error(err))
			}
		}
	}

	rep.Advance(stageSynthesize)
	taskID, err := env.Client.CreateSpeechTask(ctx, chanjing.SpeechRequest{
		VoiceID: voiceID,
		Speed:   in.Float("speed"),
		Pitch:   in.Float("pitch"),
		Text:    text,
	})
	if err != nil {
		return outcome{}, err
	}
	speech, err := env.Client.WaitSpeech(ctx, taskID, speechPollOptions(env), rep.Update)
	if err != nil {
		return outcome{}, err
	}

	rep.Advance(stageDownload)
	localPath, err := env.Client.Download(ctx, speech.URL, env.Output(), "cicada_tts", ".mp3", rep.Update)
	if err != nil {
		return outcome{}, err
	}
	rep.Finish("speech synthesis complete")
	logger.Info("speech synthesis complete",
		logging.String("voice_id", voiceID),
		logging.String("path", localPath),
		logging.Float64("duration_seconds", speech.Duration))

	return outcome{
		audio:  audioOutput(localPath, logger),
		url:    speech.URL,
		path:   localPath,
		detail: fmt.Sprintf("voice %s (%s)", voiceID, model),
	}, nil
}

// revalidate returns a remembered voice id for (contentHash, model)
// after confirming the remote voice still exists. Voices the platform
// reports expired, failed, or deleted are purged, as are ids the status
// query cannot resolve. ready reports whether the voice can synthesize
// immediately or still needs polling.
func revalidate(ctx context.Context, env *node.Env, contentHash, model string, logger *slog.Logger) (voiceID string, ready bool) {
	entry, found := env.Voices.Lookup(contentHash, model)
	if !found {
		return "", false
	}

	detail, err := env.Client.VoiceCloneDetail(ctx, entry.VoiceID)
	if err != nil {
		logger.Warn("cached voice status check failed, discarding entry",
			logging.String("voice_id", entry.VoiceID),
			logging.Error(err))
		purge(env, contentHash, model, logger)
		return "", false
	}

	switch detail.Status {
	case chanjing.VoiceStatusReady:
		return entry.VoiceID, true
	case chanjing.VoiceStatusWaiting, chanjing.VoiceStatusProcessing:
		logger.Info("cached voice still processing",
			logging.String("voice_id", entry.VoiceID),
			logging.Int("status", detail.Status))
		return entry.VoiceID, false
	default:
		logger.Info("cached voice no longer usable, discarding entry",
			logging.String("voice_id", entry.VoiceID),
			logging.Int("status", detail.Status))
		purge(env, contentHash, model, logger)
		return "", false
	}
}

func purge(env *node.Env, contentHash, model string, logger *slog.Logger) {
	if err := env.Voices.Remove(contentHash, model); err != nil {
		logger.Warn("voice cache purge failed", logging.Error(err))
	}
}

// gateDuration enforces the clone endpoint's reference-audio window.
// Audio over the cap is trimmed into the temp dir; unknown durations
// pass through for the remote side to judge. The returned cleanup
// removes the trimmed copy when one was made.
func gateDuration(ctx context.Context, env *node.Env, rep *progress.Reporter, path string, logger *slog.Logger) (string, func(), error) {
	noop := func() {}

	probed, err := ffprobe.Inspect(ctx, env.FFprobe(), path)
	if err != nil {
		logger.Warn("audio probe failed, skipping duration check", logging.Error(err))
		return path, noop, nil
	}
	seconds := probed.DurationSeconds()
	if seconds == 0 {
		logger.Warn("audio reports no duration, skipping duration check")
		return path, noop, nil
	}
	if seconds < minAudioSeconds {
		return "", noop, chanjing.Wrap(chanjing.ErrBusiness, "check reference audio",
			fmt.Sprintf("reference audio is %.1fs, the clone model needs at least %ds", seconds, minAudioSeconds), nil)
	}
	if seconds <= maxAudioSeconds {
		return path, noop, nil
	}

	rep.Update(50, fmt.Sprintf("trimming reference audio from %.0fs to %ds", seconds, trimSeconds))
	logger.Warn("reference audio over the clone limit, trimming",
		logging.Float64("seconds", seconds),
		logging.Int("limit", maxAudioSeconds))

	tmp, err := os.CreateTemp(env.Temp(), "cicada-trim-*"+filepath.Ext(path))
	if err != nil {
		return "", noop, chanjing.Wrap(chanjing.ErrConfiguration, "check reference audio", "create trim target", err)
	}
	dst := tmp.Name()
	tmp.Close()

	if err := audio.Trim(ctx, env.FFmpeg(), path, dst, trimSeconds); err != nil {
		os.Remove(dst)
		return "", noop, chanjing.Wrap(chanjing.ErrConfiguration, "check reference audio", "trim reference audio", err)
	}
	return dst, func() { os.Remove(dst) }, nil
}

// audioOutput loads the downloaded file as raw samples when it is WAV,
// handing downstream audio nodes something they can process directly.
// Other containers pass through as a path.
func audioOutput(path string, logger *slog.Logger) any {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return path
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Warn("downloaded audio unreadable, passing path through", logging.Error(err))
		return path
	}
	defer f.Close()

	samples, rate, err := audio.DecodeWAV(f)
	if err != nil {
		logger.Warn("downloaded audio not WAV-decodable, passing path through", logging.Error(err))
		return path
	}
	return &node.AudioBuffer{Data: samples, SampleRate: rate}
}

func clonePollOptions(env *node.Env) chanjing.PollOptions {
	opts := chanjing.PollOptions{}
	if env.Config != nil {
		opts.Timeout = time.Duration(env.Config.Jobs.VoiceCloneTimeoutSeconds) * time.Second
		opts.FailureBudget = env.Config.Jobs.FailureBudget
	}
	return opts
}

func speechPollOptions(env *node.Env) chanjing.PollOptions {
	opts := chanjing.PollOptions{}
	if env.Config != nil {
		opts.Timeout = time.Duration(env.Config.Jobs.SpeechTimeoutSeconds) * time.Second
		opts.FailureBudget = env.Config.Jobs.FailureBudget
	}
	return opts
}
