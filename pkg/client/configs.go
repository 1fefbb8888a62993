package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// ListSnapshots lists stored configurations, optionally for one device
func (c *Client) ListSnapshots(ctx context.Context, deviceName string, page Page) ([]Snapshot, error) {
	q := page.values()
	if deviceName != "" {
		q.Set("device_name", deviceName)
	}
	var out []Snapshot
	err := c.do(ctx, http.MethodGet, "/api/configs/snapshots", q, nil, &out)
	return out, err
}

// GetSnapshot fetches a snapshot including its content
func (c *Client) GetSnapshot(ctx context.Context, id uint) (*Snapshot, error) {
	var out Snapshot
	if err := c.do(ctx, http.MethodGet, pathf("/api/configs/snapshots/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveRunningConfigs collects and stores the running-config of each device now
func (c *Client) SaveRunningConfigs(ctx context.Context, devices []string, command string, timeout int) (map[string]HostResult, error) {
	body := map[string]interface{}{"devices": devices}
	if command != "" {
		body["command"] = command
	}
	if timeout > 0 {
		body["timeout"] = timeout
	}
	var out struct {
		Results map[string]HostResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/configs/snapshots", nil, body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// DownloadSnapshot streams the snapshot file into w and returns its file name.
// Redirects to object storage are followed.
func (c *Client) DownloadSnapshot(ctx context.Context, id uint, w io.Writer) (string, error) {
	c.ensureHTTP()
	u := strings.TrimRight(c.BaseURL, "/") + pathf("/api/configs/snapshots/%d/download", id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", decodeError(resp)
	}

	filename := fmt.Sprintf("snapshot-%d.txt", id)
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		filename = params["filename"]
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("failed to read snapshot: %w", err)
	}
	return filename, nil
}

// ListSchedules lists backup schedules
func (c *Client) ListSchedules(ctx context.Context, page Page) ([]Schedule, error) {
	var out []Schedule
	err := c.do(ctx, http.MethodGet, "/api/configs/schedules", page.values(), nil, &out)
	return out, err
}

// SaveSchedule creates the caller's schedule, or updates it if one exists
func (c *Client) SaveSchedule(ctx context.Context, in ScheduleInput) (*Schedule, error) {
	var out Schedule
	if err := c.do(ctx, http.MethodPost, "/api/configs/schedules", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSchedule fetches one schedule
func (c *Client) GetSchedule(ctx context.Context, id uint) (*Schedule, error) {
	var out Schedule
	if err := c.do(ctx, http.MethodGet, pathf("/api/configs/schedules/%d", id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSchedule changes the supplied fields of a schedule
func (c *Client) UpdateSchedule(ctx context.Context, id uint, in ScheduleInput) (*Schedule, error) {
	var out Schedule
	if err := c.do(ctx, http.MethodPut, pathf("/api/configs/schedules/%d", id), nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteSchedule removes a schedule
func (c *Client) DeleteSchedule(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, pathf("/api/configs/schedules/%d", id), nil, nil, nil)
}

// RunScheduleNow asks the scheduler to run an enabled schedule on its next tick
func (c *Client) RunScheduleNow(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodPost, pathf("/api/configs/schedules/%d/run-now", id), nil, nil, nil)
}

// ScheduleRuns lists the recent executions of a schedule
func (c *Client) ScheduleRuns(ctx context.Context, id uint, page Page) ([]BackupRun, error) {
	var out []BackupRun
	err := c.do(ctx, http.MethodGet, pathf("/api/configs/schedules/%d/runs", id), page.values(), nil, &out)
	return out, err
}
