// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides usbthief's leveled logging. Time/date are
// omitted by default because systemd timestamps journal entries for
// us; call SetLogDateTime(true) to have it printed inline instead.
//
// Uses these prefixes: https://www.freedesktop.org/software/systemd/man/sd-daemon.html
package log

import (
	"fmt"
	"io"
	"log"
	"os"
)

var logDateTime bool

// level bundles a severity's writer (swapped to io.Discard once
// SetLogLevel silences it) with its plain and timestamped loggers.
type level struct {
	writer io.Writer
	plain  *log.Logger
	timed  *log.Logger
}

func newLevel(prefix string, flags int) *level {
	return &level{
		writer: os.Stderr,
		plain:  log.New(os.Stderr, prefix, flags),
		timed:  log.New(os.Stderr, prefix, flags|log.LstdFlags),
	}
}

var (
	debugLvl = newLevel("<7>[DEBUG]    ", 0)
	infoLvl  = newLevel("<6>[INFO]     ", 0)
	noteLvl  = newLevel("<5>[NOTICE]   ", log.Lshortfile)
	warnLvl  = newLevel("<4>[WARNING]  ", log.Lshortfile)
	errLvl   = newLevel("<3>[ERROR]    ", log.Llongfile)
	critLvl  = newLevel("<2>[CRITICAL] ", log.Llongfile)
)

// severityOrder lists levels from quietest-to-silence-first to
// loudest, matching the cut points SetLogLevel recognizes.
var severityOrder = []*level{debugLvl, infoLvl, noteLvl, warnLvl, errLvl}

func (l *level) output(s string) {
	if l.writer == io.Discard {
		return
	}
	if logDateTime {
		l.timed.Output(3, s)
	} else {
		l.plain.Output(3, s)
	}
}

// SetLogLevel silences every level quieter than lvl by redirecting
// its writer to io.Discard. An unrecognized value logs a warning and
// falls back to "debug" (nothing silenced).
func SetLogLevel(lvl string) {
	cut, ok := map[string]int{
		"debug": 0, "info": 1, "notice": 2, "warn": 3, "err": 4, "fatal": 4, "crit": 5,
	}[lvl]
	if !ok {
		fmt.Printf("pkg/log: loglevel %#v is invalid, using 'debug'\n", lvl)
		cut = 0
	}
	for i, l := range severityOrder {
		if i < cut {
			l.writer = io.Discard
		}
	}
}

func SetLogDateTime(logdate bool) { logDateTime = logdate }

func Print(v ...interface{}) { Info(v...) }

func Debug(v ...interface{}) { debugLvl.output(fmt.Sprint(v...)) }
func Info(v ...interface{})  { infoLvl.output(fmt.Sprint(v...)) }
func Note(v ...interface{})  { noteLvl.output(fmt.Sprint(v...)) }
func Warn(v ...interface{})  { warnLvl.output(fmt.Sprint(v...)) }
func Error(v ...interface{}) { errLvl.output(fmt.Sprint(v...)) }
func Crit(v ...interface{})  { critLvl.output(fmt.Sprint(v...)) }

// Panic logs v at error level then panics.
func Panic(v ...interface{}) {
	Error(v...)
	panic("usbthief: panic triggered")
}

// Fatal logs v at error level then exits the process.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Printf(format string, v ...interface{}) { Infof(format, v...) }

func Debugf(format string, v ...interface{}) { debugLvl.output(fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})  { infoLvl.output(fmt.Sprintf(format, v...)) }
func Notef(format string, v ...interface{})  { noteLvl.output(fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})  { warnLvl.output(fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...interface{}) { errLvl.output(fmt.Sprintf(format, v...)) }
func Critf(format string, v ...interface{})  { critLvl.output(fmt.Sprintf(format, v...)) }

func Panicf(format string, v ...interface{}) {
	Errorf(format, v...)
	panic("usbthief: panic triggered")
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}
