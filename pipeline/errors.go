package pipeline

import "errors"

// Stage errors surfaced to the API boundary. Each aborts the character's
// current run; none of them is retried automatically except where a stage
// documents its own bounded retry.
var (
	// ErrMissingRawImage means the character has no uploaded drawing yet, so
	// no stage may run. Checked before any external call.
	ErrMissingRawImage = errors.New("pipeline: character has no raw image")

	// ErrUnknownStylePreset is a configuration error: the requested style
	// selector maps to no known prompt template.
	ErrUnknownStylePreset = errors.New("pipeline: unknown style preset")

	// ErrUpstreamProtocol means the stylization service violated its own
	// response contract (e.g. completed without result URLs).
	ErrUpstreamProtocol = errors.New("pipeline: stylization service violated response contract")

	// ErrUpstreamGeneration means the stylization service reported an
	// explicit failure for the submitted job.
	ErrUpstreamGeneration = errors.New("pipeline: stylization job failed")

	// ErrPollTimeout means the stylization job did not reach a terminal
	// state within the configured deadline.
	ErrPollTimeout = errors.New("pipeline: stylization polling timed out")

	// ErrDownload means an externally-hosted resource could not be fetched.
	ErrDownload = errors.New("pipeline: download failed")

	// ErrAssetNotFound means a required predecessor asset record is missing.
	ErrAssetNotFound = errors.New("pipeline: required asset not found")

	// ErrRender means a renderer process failed for a motion preset.
	ErrRender = errors.New("pipeline: renderer failed")
)
