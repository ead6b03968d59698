// Package formatter renders member status tables and video lists for
// CLI output (plain text and CSV).
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mozbugbox/bitiwo/internal/models"
)

// FormatTimestamp renders a unix timestamp as local date and time.
func FormatTimestamp(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04")
}

// StatusToText renders a member status table, one member per line.
func StatusToText(statuses []models.MemberStatus) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("%-12s %-24s %6s  %s\n", "MID", "Name", "New", "Last Video"))
	for _, st := range statuses {
		buf.WriteString(fmt.Sprintf("%-12d %-24s %6d  %s\n",
			st.MID, st.Name, st.NewCount, FormatTimestamp(st.LastCreated)))
	}
	buf.WriteString(fmt.Sprintf("\n%d members\n", len(statuses)))

	return buf.Bytes()
}

// VideosToText renders a numbered video list. Unvisited videos are
// marked with an asterisk.
func VideosToText(videos []models.Video) []byte {
	var buf bytes.Buffer

	for i, v := range videos {
		marker := " "
		if !v.Visited {
			marker = "*"
		}
		name := v.MemberName
		if name == "" {
			name = strconv.FormatInt(v.MID, 10)
		}
		buf.WriteString(fmt.Sprintf("%3d.%s [%s] %s - %s (%s) %s\n",
			i+1, marker, FormatTimestamp(v.Created), name, v.Title, v.Length, v.BVID))
	}
	buf.WriteString(fmt.Sprintf("\n%d videos\n", len(videos)))

	return buf.Bytes()
}

// PartsToText renders the part list of a multi-part video.
func PartsToText(parts []models.VideoPart) []byte {
	var buf bytes.Buffer

	for _, p := range parts {
		buf.WriteString(fmt.Sprintf("%3d. %s [%s]\n", p.Page, p.Part, FormatDuration(p.Duration)))
	}

	return buf.Bytes()
}

// FormatDuration renders seconds as m:ss or h:mm:ss.
func FormatDuration(seconds int64) string {
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// VideosToCSV renders videos as CSV with a header row.
func VideosToCSV(videos []models.Video) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"BVID", "Title", "Member", "Created", "Length", "Views", "Comments", "Visited"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range videos {
		record := []string{
			v.BVID,
			v.Title,
			v.MemberName,
			strconv.FormatInt(v.Created, 10),
			v.Length,
			strconv.FormatInt(v.ViewCount, 10),
			strconv.FormatInt(v.Comment, 10),
			strconv.FormatBool(v.Visited),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteCSVExport writes videos to a CSV file and returns the path.
func WriteCSVExport(videos []models.Video, path string) (string, error) {
	if path == "" {
		path = "videos.csv"
	}

	data, err := VideosToCSV(videos)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return path, nil
}
