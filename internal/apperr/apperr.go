// Package apperr defines the error taxonomy shared by the pipeline stages.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error by the collaborator or stage that produced it.
type Kind string

const (
	KindContentFetch   Kind = "content_fetch"
	KindContentParsing Kind = "content_parsing"
	KindClassification Kind = "category_classification"
	KindChatAPI        Kind = "chat_api"
	KindSummarizer     Kind = "summarizer_api"
	KindConfiguration  Kind = "configuration"
	KindPipeline       Kind = "pipeline"
)

// Step names used in logs, run records and error notifications.
const (
	StepURLFetch          = "rss_fetch"
	StepContentFetch      = "content_fetch"
	StepContentParse      = "content_parse"
	StepCategorization    = "categorization"
	StepSummaryGeneration = "summary_generation"
	StepReportCreation    = "report_creation"
	StepSlackPosting      = "slack_posting"
	StepStatistics        = "statistics"
)

// Error is the application error carrying pipeline context.
type Error struct {
	Kind    Kind
	Step    string
	JobID   string
	URL     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Step != "" {
		b.WriteString("[")
		b.WriteString(e.Step)
		b.WriteString("] ")
	}
	b.WriteString(e.Message)
	if e.URL != "" {
		b.WriteString(" (")
		b.WriteString(e.URL)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// WithJob returns a copy of e tagged with the given job id.
func (e *Error) WithJob(jobID string) *Error {
	c := *e
	c.JobID = jobID
	return &c
}

// ContentFetch reports a network, timeout or size-limit failure for url.
func ContentFetch(url, msg string, err error) *Error {
	return &Error{Kind: KindContentFetch, Step: StepContentFetch, URL: url, Message: msg, Err: err}
}

// ContentParsing reports a readable-extraction, conversion or length failure for url.
func ContentParsing(url, msg string, err error) *Error {
	return &Error{Kind: KindContentParsing, Step: StepContentParse, URL: url, Message: msg, Err: err}
}

// Classification reports a scoring failure for a single article.
func Classification(msg string, err error) *Error {
	return &Error{Kind: KindClassification, Step: StepCategorization, Message: msg, Err: err}
}

// ChatAPI reports a failure talking to the chat platform.
func ChatAPI(msg string, err error) *Error {
	return &Error{Kind: KindChatAPI, Message: msg, Err: err}
}

// Summarizer reports a failure talking to the language model.
func Summarizer(msg string, err error) *Error {
	return &Error{Kind: KindSummarizer, Step: StepSummaryGeneration, Message: msg, Err: err}
}

// Configuration reports invalid or missing settings.
func Configuration(msg string, err error) *Error {
	return &Error{Kind: KindConfiguration, Message: msg, Err: err}
}

// Step creates a fatal stage-level error.
func Step(step, msg string, err error) *Error {
	return &Error{Kind: KindPipeline, Step: step, Message: msg, Err: err}
}

// Is reports whether any error in err's chain is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// StepOf returns the step of the outermost *Error in err's chain.
func StepOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Step
	}
	return ""
}

// Report is the user-facing description of a fatal run failure.
type Report struct {
	Message string
	JobID   string
	Step    string
	Trace   string
}

// NewReport builds a Report from err. Trace lists the wrapped causes, one per line.
func NewReport(err error, jobID string) Report {
	r := Report{Message: err.Error(), JobID: jobID, Step: StepOf(err)}
	var e *Error
	if errors.As(err, &e) {
		r.Message = e.Message
		if e.JobID != "" {
			r.JobID = e.JobID
		}
	}

	var lines []string
	for cause := err; cause != nil; cause = errors.Unwrap(cause) {
		lines = append(lines, fmt.Sprintf("%T: %s", cause, cause.Error()))
	}
	r.Trace = strings.Join(lines, "\n")
	return r
}
