// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/location_recorder/internal/config"
	"github.com/relabs-tech/location_recorder/internal/location"
	"github.com/relabs-tech/location_recorder/internal/recorder"
	"github.com/relabs-tech/location_recorder/internal/storage"
)

// RunRecorder records one session until ctx is cancelled: it samples the
// configured location source, rewrites the session file on every full
// batch and flushes the remainder on the way out.
func RunRecorder(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// ---- 1) Session file ----
	codec, err := storage.CodecFor(cfg.OutputFormat)
	if err != nil {
		return err
	}
	started := time.Now()
	sessionID := uuid.NewString()

	fileSink, err := storage.NewFileSink(cfg.OutputDir, storage.SessionFileName(started, codec), codec)
	if err != nil {
		return err
	}
	// rec is set before the first write reaches the async sink
	var rec *recorder.Recorder
	var sink recorder.Sink = fileSink
	var async *storage.AsyncSink
	if cfg.FlushAsync {
		async = storage.NewAsyncSink(fileSink, func(err error) {
			rec.ReportWrite(err)
		})
		sink = async
	}
	log.Printf("recorder: session %s writing to %q", sessionID, fileSink.Path())

	// ---- 2) Location source ----
	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("start %s source: %w", cfg.Provider, err)
	}
	defer src.Close()
	log.Printf("recorder: using %s location source", cfg.Provider)

	// ---- 3) Status fan-out ----
	hub := newStatusHub()
	defer hub.close()

	var pub *statusPublisher
	if cfg.PublishStatus {
		pub, err = newStatusPublisher(cfg.MQTTBroker, cfg.MQTTClientIDRecorder, cfg.TopicStatus)
		if err != nil {
			return err
		}
		defer pub.close()
	}

	rec = recorder.New(src, sink, recorder.Options{
		BatchSize: cfg.BatchSize,
		Deferred:  cfg.FlushAsync,
		SessionID: sessionID,
		Path:      fileSink.Path(),
		StartedAt: started,
		OnFlush: func(st recorder.Status) {
			hub.broadcast(st)
			if pub != nil {
				pub.publish(st)
			}
		},
	})

	// ---- 4) Sampling loop and web server ----
	g, gctx := errgroup.WithContext(ctx)
	interval := time.Duration(cfg.SampleIntervalMs) * time.Millisecond
	g.Go(func() error {
		return rec.Run(gctx, interval, src.Headings())
	})

	if cfg.WebServerPort > 0 {
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
			Handler: NewWebMux(rec, hub),
		}
		g.Go(func() error {
			log.Printf("web server listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("web server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if async != nil {
		async.Close()
	}

	st := rec.Status()
	log.Printf("recorder: session %s finished: %d samples, %d flushes, %d failed, file %q",
		st.SessionID, st.Samples, st.Flushes, st.FailedFlushes, st.Path)
	return err
}

func newSource(cfg *config.Config) (location.Source, error) {
	switch cfg.Provider {
	case config.ProviderNMEA:
		port, err := openGPSPort(cfg.GPSSerialPort, cfg.GPSBaudRate)
		if err != nil {
			return nil, err
		}
		return location.NewNMEASource(port, cfg.NMEAUEREMeters, cfg.HeadingAccuracyDeg), nil
	case config.ProviderMQTT:
		return location.NewMQTTSource(cfg.MQTTBroker, cfg.MQTTClientIDRecorder, cfg.TopicGPS, cfg.TopicHeading), nil
	case config.ProviderMock:
		return location.NewMockSource(location.DefaultMockConfig()), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
