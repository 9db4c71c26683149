// shareimport - An attachment import pipeline for end-to-end encrypted messengers.
// Copyright (C) 2026 shareimport contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package shareingest

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/tidwall/gjson"
	"go.mau.fi/util/ffmpeg"
)

// probeVideoCodec returns the codec name of the first video stream in the
// file, using ffprobe's JSON output.
func probeVideoCodec(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx,
		"ffprobe", "-v", "quiet", "-print_format", "json", "-show_streams", path,
	).Output()
	if err != nil {
		return "", fmt.Errorf("ffprobe failed: %w", err)
	}
	codec := gjson.GetBytes(out, `streams.#(codec_type=="video").codec_name`)
	if !codec.Exists() {
		return "", fmt.Errorf("no video stream in ffprobe output")
	}
	return codec.String(), nil
}

// TranscodeSession is one asynchronous MPEG-4 recompression. Its progress is
// estimated by polling the growing output file against the input size at the
// configured interval, only while the export is active.
type TranscodeSession struct {
	tracker *Tracker
	cancel  context.CancelFunc
	done    chan struct{}
	// outputPath is the predicted output location, fixed at session start
	// so the poller can watch it while the export runs.
	outputPath string
	resultPath string
	err        error
}

// startTranscode kicks off a recompression of src to MPEG-4. The ffmpeg
// helper derives its output path from the source name, so the source is
// moved aside first; recompressing a file that already has an .mp4 extension
// would otherwise collide with its own output.
func (b *Builder) startTranscode(ctx context.Context, src string, tracker *Tracker) (*TranscodeSession, error) {
	if !ffmpeg.Supported() {
		return nil, fmt.Errorf("video recompression required but ffmpeg is not available")
	}
	input := src + ".in"
	if err := os.Rename(src, input); err != nil {
		return nil, fmt.Errorf("failed to move source aside: %w", err)
	}
	var inputSize int64
	if info, err := os.Stat(input); err == nil {
		inputSize = info.Size()
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	session := &TranscodeSession{
		tracker: tracker,
		cancel:  cancel,
		done:    make(chan struct{}),
		// ffmpeg.ConvertPath replaces the final extension, so "x.mov.in"
		// becomes "x.mov.mp4".
		outputPath: src + ".mp4",
	}
	go session.poll(sessionCtx, b.transcode.PollInterval, inputSize)
	go func() {
		defer close(session.done)
		defer cancel()
		session.resultPath, session.err = ffmpeg.ConvertPath(
			sessionCtx, input, ".mp4", nil, b.transcode.OutputArgs, true)
	}()
	return session, nil
}

// poll samples the output file size while the export is running. The
// estimate is capped below completion; Wait settles the final value.
func (session *TranscodeSession) poll(ctx context.Context, interval time.Duration, inputSize int64) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if inputSize <= 0 {
			continue
		}
		if info, err := os.Stat(session.outputPath); err == nil {
			percent := int(info.Size() * 100 / inputSize)
			if percent > 99 {
				percent = 99
			}
			session.tracker.set(percent)
		}
	}
}

// Wait blocks until the export finishes and returns the output path.
func (session *TranscodeSession) Wait() (string, error) {
	<-session.done
	session.tracker.finish()
	return session.resultPath, session.err
}

// Cancel aborts the export. The session's progress is forced to 100 so the
// aggregate can settle: a cancelled step counts as done, not failed.
func (session *TranscodeSession) Cancel() {
	session.cancel()
	session.tracker.finish()
}
