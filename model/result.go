package model

import (
	"fmt"
	"math"
)

type MatchKind string

const (
	MatchTitle      MatchKind = "title"
	MatchTranscript MatchKind = "transcript"
)

type Result struct {
	Title     string    `json:"title"`
	VideoID   VideoID   `json:"video_id"`
	VideoURL  string    `json:"video_url"`
	Start     float64   `json:"start"`
	Timestamp string    `json:"timestamp"`
	URL       string    `json:"url"`
	MatchText string    `json:"match"`
	Kind      MatchKind `json:"match_type"`
}

const DefaultPlayerHost = "player.vimeo.com"

// DeepLink returns the player URL that opens video id at the truncated
// integer second of start.
func DeepLink(host string, id VideoID, start float64) string {
	if host == "" {
		host = DefaultPlayerHost
	}
	return fmt.Sprintf("https://%s/video/%s#t=%ds", host, id, wholeSeconds(start))
}

// FormatTimestamp renders seconds as HH:MM:SS. Hours are not wrapped.
func FormatTimestamp(seconds float64) string {
	total := wholeSeconds(seconds)
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

func wholeSeconds(seconds float64) int64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0
	}
	return int64(math.Trunc(seconds))
}
