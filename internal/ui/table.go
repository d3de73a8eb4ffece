package ui

import (
	"strconv"

	"github.com/desertthunder/hitscan/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Align is a column alignment.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
)

// RenderTable draws headers and rows; short rows are padded with empty cells.
func RenderTable(headers []string, rows [][]string, aligns []Align) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == AlignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// HitsTable renders hit candidate rows as a numbered table.
func HitsTable(rows []models.HitCandidateRow) string {
	headers := []string{"#", "Track", "Artist", "Album", "Popularity", "Featured", "Hit"}
	aligns := []Align{AlignRight, AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignLeft, AlignLeft}

	data := make([][]string, 0, len(rows))
	for i, row := range rows {
		var artist, album string
		if row.Album != nil {
			artist, album = row.Album.ArtistName, row.Album.Name
		}
		popularity := ""
		if row.Track.Popularity != nil {
			popularity = strconv.Itoa(*row.Track.Popularity)
		}
		data = append(data, []string{
			strconv.Itoa(i + 1),
			row.Track.Name,
			artist,
			album,
			popularity,
			yesNo(row.Track.InFeaturedPlaylist),
			yesNo(row.IsHitCandidate),
		})
	}
	return RenderTable(headers, data, aligns)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
