// Command whisx transcribes a directory tree of audio files with WhisperX,
// running one worker per GPU.
//
// Subcommands:
//
//	run <dir>          transcribe every file that lacks a result (alias: transcribe)
//	scan <dir>         report how many files are pending and already done
//	stats <dir>        corpus duration, coverage and language statistics
//	gpus               list the GPUs nvidia-smi reports
//	status             check the external binaries and directories
//	logs               show or follow the log of a run
//	test-notify        send a test ntfy notification
//	config init|validate
package main
