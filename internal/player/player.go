// Package player implements the terminal node that turns a rendered
// video into something the host UI can play: remote URLs are downloaded
// into the output directory, local paths are served as they are.
package player

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cicada/internal/chanjing"
	"cicada/internal/history"
	"cicada/internal/logging"
	"cicada/internal/node"
	"cicada/internal/progress"
)

// Name is the registry identifier for this node.
const Name = "player"

const (
	stageDownload = "download"
	stageFinish   = "finish"
)

// Node fetches a video for playback and emits the UI payload.
type Node struct{}

// New returns the video player node.
func New() *Node { return &Node{} }

// Spec describes the node to the host.
func (n *Node) Spec() node.Spec {
	return node.Spec{
		Name:        Name,
		DisplayName: "Cicada Video Player",
		Category:    "Cicada AI",
		Inputs: []node.ParamSpec{
			{
				Name: "video_url", Label: "Video URL", Type: node.TypeString, Default: "",
				Tooltip: "Rendered video URL from an upstream node, or a local file path",
			},
		},
		Terminal: true,
	}
}

// Execute fetches the video and records the invocation outcome.
func (n *Node) Execute(ctx context.Context, env *node.Env, in node.Inputs) (*node.Result, error) {
	started := time.Now()
	source, localPath, resultURL, err := n.fetch(ctx, env, in)

	rec := history.Record{
		Node:       Name,
		Status:     history.StatusSucceeded,
		Detail:     fmt.Sprintf("played %s", filepath.Base(localPath)),
		ResultURL:  resultURL,
		LocalPath:  localPath,
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
	return &node.Result{
		UI: &node.UIPayload{
			Videos: []node.VideoView{{
				Filename:  filepath.Base(localPath),
				Subfolder: subfolder(env.Output(), localPath),
				Format:    "video/mp4",
			}},
			Text: []string{source},
		},
	}, nil
}

func (n *Node) fetch(ctx context.Context, env *node.Env, in node.Inputs) (source, localPath, resultURL string, err error) {
	logger := logging.NewComponentLogger(env.Logger, "player")

	source = strings.TrimSpace(in.String("video_url"))
	if source == "" {
		return "", "", "", chanjing.Wrap(chanjing.ErrBusiness, "play video", "no video URL or file path given", nil)
	}

	rep := env.Reporter(
		progress.Stage{Name: stageDownload, Weight: 95},
		progress.Stage{Name: stageFinish, Weight: 5},
	)
	rep.Start()

	localPath = source
	if isRemote(source) {
		rep.Advance(stageDownload)
		localPath, err = env.Client.Download(ctx, source, env.Output(), "cicada_video", ".mp4", rep.Update)
		if err != nil {
			return "", "", "", err
		}
		resultURL = source
	} else if err := node.VerifyLocalFile(source, node.KindVideo); err != nil {
		return "", "", "", err
	}

	rep.Advance(stageFinish)
	rep.Finish("video ready")
	logger.Info("video ready", logging.String("path", localPath))
	return source, localPath, resultURL, nil
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// subfolder locates the file's directory relative to the host output
// root, falling back to the absolute directory for files outside it.
func subfolder(outputDir, path string) string {
	dir := filepath.Dir(path)
	rel, err := filepath.Rel(outputDir, dir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return dir
	}
	if rel == "." {
		return ""
	}
	return rel
}
