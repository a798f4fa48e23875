/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

// MaxSize is the rotation threshold per log file.
var MaxSize int64 = 4 * 1024 * 1024

func Infoln(args ...any) { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any) { log(sevInfo, 0, format, args...) }
func InfoDepth(depth int, args ...any) { log(sevInfo, depth, "", args...) }
func Warningln(args ...any) { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func Errorln(args ...any) { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any) { log(sevErr, 0, format, args...) }
func ErrorDepth(depth int, args ...any) { log(sevErr, depth, "", args...) }

// SetLogDir points the logger at a directory, tagged with the local node
// id (e.g. "n17") in rotated file names. Must be called before the first
// log line; once the stderr fallback has been taken it sticks.
func SetLogDir(dir, tag string) { logDir, nodeTag = dir, tag }

// SetTitle sets a banner written at the top of every rotated file.
func SetTitle(s string) { title = s }

// SetStderr routes everything to stderr (only=true) or mirrors log lines
// to stderr in addition to the files.
func SetStderr(only, also bool) { toStderr, alsoToStderr = only, also }

// Flush drains buffered lines to disk; Flush(true) also syncs and closes
// the files on process exit.
func Flush(exit ...bool) {
	ex := len(exit) > 0 && exit[0]
	info.finalize(ex)
	errs.finalize(ex)
}
