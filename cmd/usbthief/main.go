// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allenjin-login/usbthief/internal/config"
	"github.com/allenjin-login/usbthief/internal/copyengine"
	"github.com/allenjin-login/usbthief/internal/device"
	"github.com/allenjin-login/usbthief/internal/eventbus"
	"github.com/allenjin-login/usbthief/internal/executor"
	"github.com/allenjin-login/usbthief/internal/index"
	"github.com/allenjin-login/usbthief/internal/loadeval"
	"github.com/allenjin-login/usbthief/internal/ratelimit"
	"github.com/allenjin-login/usbthief/internal/repository"
	"github.com/allenjin-login/usbthief/internal/runtimeEnv"
	"github.com/allenjin-login/usbthief/internal/scanner"
	"github.com/allenjin-login/usbthief/internal/scheduler"
	"github.com/allenjin-login/usbthief/internal/service"
	"github.com/allenjin-login/usbthief/pkg/log"
)

func main() {
	var flagDBPath, flagLogLevel, flagUser, flagGroup string
	var flagResetConfig bool
	flag.StringVar(&flagDBPath, "db", "./var/usbthief.db", "Path to the sqlite3 database holding known devices and the runtime blacklist")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "One of debug, info, warn, err, crit")
	flag.StringVar(&flagUser, "user", "", "Drop privileges to this user after startup")
	flag.StringVar(&flagGroup, "group", "", "Drop privileges to this group after startup")
	flag.BoolVar(&flagResetConfig, "reset-config", false, "Reset every configuration entry to its default before starting")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)

	if err := runtimeEnv.LoadEnv("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("usbthief: parsing './.env' failed: %v", err)
	}

	store := config.New()
	if flagResetConfig {
		store.ResetAll()
	}

	if err := os.MkdirAll(store.GetString("work_path"), 0o755); err != nil {
		log.Fatalf("usbthief: create work_path: %v", err)
	}

	repository.Connect(flagDBPath)
	conn := repository.GetConnection()
	deviceRepo := repository.NewDeviceRepository(conn)
	blackRepo := repository.NewBlacklistRepository(conn)

	bus := eventbus.New()
	idx := index.New()

	reg := service.NewRegistry()

	reg.Register(service.Func{
		ServiceName: "index",
		StartFunc: func(ctx context.Context) error {
			if err := idx.Load(store.GetString("index_path")); err != nil {
				log.Errorf("usbthief: index load: %v", err)
				return nil
			}
			bus.PublishSync(eventbus.NewIndexLoaded(idx.Len()))
			return nil
		},
		StopFunc: func(ctx context.Context) error {
			return idx.Save(store.GetString("index_path"))
		},
	})

	saver, err := index.NewSaver(idx, bus,
		store.GetString("index_path"),
		time.Duration(store.GetInt("save_initial_delay_sec"))*time.Second,
		time.Duration(store.GetInt("save_interval_sec"))*time.Second,
	)
	if err != nil {
		log.Fatalf("usbthief: create index saver: %v", err)
	}
	reg.Register(service.Func{
		ServiceName: "index-saver",
		StartFunc:   func(ctx context.Context) error { saver.Start(); return nil },
		StopFunc:    func(ctx context.Context) error { return saver.Stop() },
	})

	recyclerStrategy, err := index.ParseRecyclerStrategy(store.GetString("recycler_strategy"))
	if err != nil {
		log.Warnf("usbthief: %v, defaulting to TIME_FIRST", err)
	}
	recycler := index.NewRecycler(idx, bus, index.StatfsDiskUsage,
		store.GetString("work_path"),
		store.GetLong("reserved_bytes"),
		store.GetLong("max_bytes"),
		time.Duration(store.GetInt("protected_age_hours"))*time.Hour,
		recyclerStrategy,
	)
	recyclerSub := eventbus.Subscribe(bus, func(e eventbus.CopyCompleted) {
		if err := recycler.Check(); err != nil {
			log.Errorf("usbthief: recycler check: %v", err)
		}
	})
	reg.Register(service.Func{
		ServiceName: "recycler",
		StartFunc:   func(ctx context.Context) error { return recycler.Check() },
		StopFunc:    func(ctx context.Context) error { bus.Unsubscribe(recyclerSub); return nil },
	})

	lister := device.ProcMountsLister{}
	manager := device.NewManager(lister, bus, deviceRepo, blackRepo)
	manager.SetStaticBlacklist(store.GetStringList("device_blacklist_by_serial"))
	reg.Register(service.Func{
		ServiceName: "device-manager",
		StartFunc: func(ctx context.Context) error {
			if err := manager.LoadKnown(); err != nil {
				log.Errorf("usbthief: load known devices: %v", err)
			}
			return manager.StartScanLoop(
				time.Duration(store.GetInt("initial_delay_sec"))*time.Second,
				time.Duration(store.GetInt("scan_interval_sec"))*time.Second,
			)
		},
		StopFunc: func(ctx context.Context) error { return manager.StopScanLoop() },
	})

	rl := ratelimit.New(store.GetLong("copy_rate_limit_base"), store.GetLong("burst_size"))
	speed := copyengine.NewSpeedProbe(5 * time.Second)
	engine := copyengine.New(copyengine.Config{
		WorkDir:     store.GetString("work_path"),
		MaxFileSize: store.GetLong("max_file_size"),
		BufferSize:  store.GetInt("buffer_size"),
	}, idx, rl, bus, speed)

	pool := executor.New(
		store.GetInt("core_pool"),
		store.GetInt("max_pool"),
		store.GetInt("queue_capacity"),
		time.Duration(store.GetInt("keep_alive_sec"))*time.Second,
	)
	reg.Register(service.Func{
		ServiceName: "executor",
		StartFunc:   func(ctx context.Context) error { return nil },
		StopFunc:    func(ctx context.Context) error { return pool.Shutdown(ctx) },
	})

	sched := scheduler.New(scheduler.Config{
		TickInterval:          time.Duration(store.GetInt("tick_interval_ms")) * time.Millisecond,
		InitialDelay:          time.Duration(store.GetInt("initial_delay_ms")) * time.Millisecond,
		LowBatch:              store.GetInt("low_batch"),
		MediumBatch:           store.GetInt("medium_batch"),
		HighPriorityThreshold: store.GetInt("high_priority_threshold"),
		BaseRate:              store.GetLong("copy_rate_limit_base"),
		AutoMode:              store.GetBool("auto_mode_enabled"),
		LowPercent:            store.GetInt("low_percent"),
		MediumPercent:         store.GetInt("medium_percent"),
		HighPercent:           store.GetInt("high_percent"),
		Weights: loadeval.Weights{
			Queue:     float64(store.GetInt("queue_weight")),
			Speed:     float64(store.GetInt("speed_weight")),
			Thread:    float64(store.GetInt("thread_weight")),
			Rejection: float64(store.GetInt("rejection_weight")),
		},
	}, rl, pool, pool, engine, engine.Copy)
	reg.Register(service.Func{
		ServiceName: "scheduler",
		StartFunc:   func(ctx context.Context) error { return sched.StartDispatcher() },
		StopFunc:    func(ctx context.Context) error { return sched.Shutdown() },
	})

	rule := scheduler.NewPriorityRule(nil)
	supervisor := scanner.NewSupervisor(store, rule, sched, bus, manager)
	reg.Register(service.Func{
		ServiceName: "scan-supervisor",
		StartFunc:   func(ctx context.Context) error { supervisor.Start(); return nil },
		StopFunc:    func(ctx context.Context) error { supervisor.Stop(); return nil },
	})

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := reg.Start(startCtx); err != nil {
		cancel()
		log.Fatalf("usbthief: startup failed: %v", err)
	}
	cancel()

	if flagUser != "" || flagGroup != "" {
		if err := runtimeEnv.DropPrivileges(flagUser, flagGroup); err != nil {
			log.Fatalf("usbthief: drop privileges: %v", err)
		}
	}

	runtimeEnv.SystemdNotifiy(true, "usbthief running")
	log.Print("usbthief: running, press Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	runtimeEnv.SystemdNotifiy(false, "usbthief shutting down")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := reg.Stop(stopCtx); err != nil {
		log.Errorf("usbthief: shutdown error: %v", err)
	}
}
