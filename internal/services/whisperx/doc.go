// Package whisperx runs WhisperX transcriptions on a single GPU.
//
// An Engine opens one Session per GPU. Two backends exist:
//   - server: a long-lived Python helper that loads the model once and
//     answers JSON-lines requests on stdin/stdout
//   - cli: `uvx whisperx` launched per file into a per-GPU scratch directory
//
// Every subprocess is started with CUDA_VISIBLE_DEVICES pinned to the
// session's GPU and is tied to the context passed to Open, so cancelling that
// context kills the GPU's work outright.
package whisperx
