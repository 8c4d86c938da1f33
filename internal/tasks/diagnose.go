package tasks

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/repteam/rep/internal/services"
	"github.com/repteam/rep/internal/shared"
)

// DiagnoseVersions are the API versions listed by [Engine.Diagnose], in order.
var DiagnoseVersions = []string{"v1beta", "v1alpha"}

// ModelProbe is the raw REST access used by the diagnostic. Implemented by [services.ProbeClient].
type ModelProbe interface {
	ListModels(ctx context.Context, apiVersion string) ([]string, *services.APIResponse, error)
	Ping(ctx context.Context, apiVersion, model string) (string, *services.APIResponse, error)
}

// VersionListing holds the gemini models visible on one API version, grouped by series.
type VersionListing struct {
	Version  string   `json:"version"`
	Series2  []string `json:"series2"`
	Series15 []string `json:"series15"`
	Other    []string `json:"other"`
	Status   int      `json:"status,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Models returns every listed model.
func (v VersionListing) Models() []string {
	return slices.Concat(v.Series2, v.Series15, v.Other)
}

// DiagnoseReport is the outcome of [Engine.Diagnose].
type DiagnoseReport struct {
	Listings    []VersionListing `json:"listings"`
	BestModel   string           `json:"bestModel,omitempty"`
	BestVersion string           `json:"bestVersion,omitempty"`
	PingOK      bool             `json:"pingOk"`
	PingText    string           `json:"pingText,omitempty"`
	PingStatus  int              `json:"pingStatus,omitempty"`
	PingError   string           `json:"pingError,omitempty"`
}

// GroupModels splits model names into the 2.x series, the 1.5 series and the rest, keeping
// only gemini models. The "models/" prefix is removed.
func GroupModels(names []string) (series2, series15, other []string) {
	for _, name := range names {
		name = strings.TrimPrefix(name, "models/")
		if !strings.Contains(name, "gemini") {
			continue
		}
		switch {
		case strings.Contains(name, "gemini-2"):
			series2 = append(series2, name)
		case strings.Contains(name, "gemini-1.5"):
			series15 = append(series15, name)
		default:
			other = append(other, name)
		}
	}
	return series2, series15, other
}

// Diagnose lists the models the configured key can see and pings the best configured model.
//
// Listing failures are reported, not returned. The error is non-nil only when no listing
// succeeded at all.
func (e *Engine) Diagnose(ctx context.Context, probe ModelProbe) (*DiagnoseReport, error) {
	if probe == nil {
		return nil, unavailable("model probe")
	}

	report := &DiagnoseReport{}
	var lastErr error
	succeeded := 0

	for _, version := range DiagnoseVersions {
		listing := VersionListing{Version: version}
		names, resp, err := probe.ListModels(ctx, version)
		if resp != nil {
			listing.Status = resp.StatusCode
		}
		if err != nil {
			e.logger.Warn("model listing failed", "version", version, "err", err)
			listing.Error = err.Error()
			lastErr = err
		} else {
			succeeded++
			listing.Series2, listing.Series15, listing.Other = GroupModels(names)
			e.logger.Debug("listed models", "version", version, "count", len(listing.Models()))
		}
		report.Listings = append(report.Listings, listing)
	}
	if succeeded == 0 {
		return report, fmt.Errorf("%w: no API version could list models: %w", shared.ErrAPIRequest, lastErr)
	}

	report.BestModel, report.BestVersion = bestModel(e.configuredModels(), report.Listings)
	if report.BestModel == "" {
		report.PingError = "none of the configured models is available"
		return report, nil
	}

	text, resp, err := probe.Ping(ctx, report.BestVersion, report.BestModel)
	if resp != nil {
		report.PingStatus = resp.StatusCode
	}
	if err != nil {
		report.PingError = err.Error()
		e.logger.Warn("ping failed", "model", report.BestModel, "version", report.BestVersion, "err", err)
		return report, nil
	}
	report.PingOK = true
	report.PingText = strings.TrimSpace(text)
	return report, nil
}

func (e *Engine) configuredModels() []string {
	if len(e.config.AI.Models) > 0 {
		return e.config.AI.Models
	}
	return services.DefaultModels
}

// bestModel returns the first configured model present in a listing, preferring the listing
// order of [DiagnoseVersions].
func bestModel(configured []string, listings []VersionListing) (model, version string) {
	for _, want := range configured {
		for _, l := range listings {
			if slices.Contains(l.Models(), want) {
				return want, l.Version
			}
		}
	}
	return "", ""
}
