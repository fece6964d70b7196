// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package detection

// Summary is the per-user rollup of a batch.
type Summary struct {
	UserID             string `json:"user_id"`
	Username           string `json:"username"`
	FirstIP            string `json:"first_ip"`
	Events             int    `json:"events"`
	Burst              int    `json:"burst"`
	FanIn              int    `json:"fan_in"`
	NumericGuess       int    `json:"numeric_guess"`
	BruteForce         int    `json:"brute_force"`
	ClusteringOutliers int    `json:"clustering_outliers"`
	IsolationOutliers  int    `json:"isolation_outliers"`
	AccountChanges     int    `json:"account_changes"`
	Anomalies          int    `json:"anomalies"`
	ReportDate         string `json:"report_date"`
}

// ReportDate returns the date of the first event with a valid time, or ""
// when no event has one.
func ReportDate(results []Result) string {
	for i := range results {
		if d := results[i].Event.Date(); d != "" {
			return d
		}
	}
	return ""
}

// Rollup summarizes results per user, in order of first appearance.
// Username and FirstIP come from the user's first event in the batch.
func Rollup(results []Result) []Summary {
	date := ReportDate(results)
	index := make(map[string]int)
	var out []Summary

	for i := range results {
		r := &results[i]
		pos, ok := index[r.Event.UserID]
		if !ok {
			pos = len(out)
			index[r.Event.UserID] = pos
			out = append(out, Summary{
				UserID:     r.Event.UserID,
				Username:   r.Event.Username,
				FirstIP:    r.Event.IPAddress,
				ReportDate: date,
			})
		}
		s := &out[pos]
		s.Events++
		s.Burst += b2i(r.Hits.Burst)
		s.FanIn += b2i(r.Hits.FanIn)
		s.NumericGuess += b2i(r.Hits.NumericGuess)
		s.BruteForce += b2i(r.Hits.BruteForce)
		s.ClusteringOutliers += b2i(r.ClusteringOutlier)
		s.IsolationOutliers += b2i(r.IsolationOutlier)
		s.AccountChanges += b2i(r.AccountChange)
		s.Anomalies += b2i(r.Anomaly)
	}
	return out
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
