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

package main

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mau.fi/util/exerrors"
	"go.mau.fi/util/exzerolog"

	"go.mau.fi/shareimport/config"
	"go.mau.fi/shareimport/pkg/shareingest"
	"go.mau.fi/shareimport/pkg/shareitem"
)

func main() {
	configPath := os.Getenv("SHAREIMPORT_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg := exerrors.Must(config.Load(configPath))
	log := exerrors.Must(cfg.Logging.Compile())
	exzerolog.SetupDefaults(log)

	var metrics *shareingest.Metrics
	if cfg.Metrics.Enabled {
		metrics = shareingest.NewMetrics()
		go func() {
			log.Info().Str("listen", cfg.Metrics.Listen).Msg("Starting metrics listener")
			err := http.ListenAndServe(cfg.Metrics.Listen, promhttp.Handler())
			log.Err(err).Msg("Metrics listener stopped")
		}()
	}

	args := os.Args[1:]
	items := make([]shareitem.Provider, len(args))
	for i, arg := range args {
		items[i] = providerForArg(arg)
	}

	importer := exerrors.Must(shareingest.NewImporter(shareingest.Config{
		WorkDir:        cfg.Import.WorkDir,
		MaxAttachments: cfg.Import.MaxAttachments,
		Transcode: shareingest.TranscodeOptions{
			Enabled:      cfg.Transcode.Enabled,
			OutputArgs:   cfg.Transcode.OutputArgs,
			PollInterval: cfg.Transcode.PollInterval(),
		},
		Metrics: metrics,
		Log:     log.With().Str("component", "importer").Logger(),
	}))

	ctx := log.WithContext(context.Background())
	attachments, err := importer.Import(ctx, items, func(percent int) {
		log.Debug().Int("percent", percent).Msg("Import progress")
	})
	if err != nil {
		limit := cfg.Import.MaxAttachments
		if limit <= 0 {
			limit = shareingest.DefaultMaxAttachments
		}
		alert := shareingest.AlertFor(err, limit)
		log.Fatal().Err(err).Str("alert_title", alert.Title).Msg(alert.Message)
	}
	for i, att := range attachments {
		data := exerrors.Must(att.Bytes())
		log.Info().
			Int("index", i).
			Str("file_name", att.FileName).
			Str("mime", att.MIME).
			Str("path", att.FilePath).
			Int("size", len(data)).
			Bool("convertible_to_text", att.ConvertibleToText).
			Bool("convertible_to_contact", att.ConvertibleToContact).
			Msg("Built attachment")
	}
}

// providerForArg turns a CLI argument into a share item: existing files are
// offered file-backed, web URLs as links, anything else as plain text.
func providerForArg(arg string) shareitem.Provider {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return shareitem.NewFileProvider(arg)
	}
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return shareitem.NewURLProvider(arg)
	}
	return shareitem.NewTextProvider(arg)
}
