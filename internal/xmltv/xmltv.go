// Package xmltv renders normalized channels and programs as an XMLTV
// guide document.
package xmltv

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/frndly/frndlyd/internal/guide"
)

const timestampFormat = "20060102150405 +0000"

// TV is the root element of an XMLTV document.
type TV struct {
	XMLName           xml.Name    `xml:"tv"`
	SourceInfoName    string      `xml:"source-info-name,attr"`
	GeneratorInfoName string      `xml:"generator-info-name,attr"`
	Channels          []Channel   `xml:"channel"`
	Programs          []Programme `xml:"programme"`
}

// Channel is one channel block.
type Channel struct {
	ID           string   `xml:"id,attr"`
	DisplayNames []string `xml:"display-name"`
	Icon         *Icon    `xml:"icon,omitempty"`
}

// Icon is a channel or programme icon.
type Icon struct {
	Src string `xml:"src,attr"`
}

// Text is a language-tagged text element.
type Text struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// EpisodeNum is an episode-num element in a given numbering system.
type EpisodeNum struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

// Rating is a content-rating block.
type Rating struct {
	System string `xml:"system,attr"`
	Value  string `xml:"value"`
}

// Flag is an empty marker element such as <new/> or <premiere/>.
type Flag struct{}

// Programme is one programme block.
type Programme struct {
	Start    string       `xml:"start,attr"`
	Stop     string       `xml:"stop,attr"`
	Channel  string       `xml:"channel,attr"`
	Title    Text         `xml:"title"`
	SubTitle *Text        `xml:"sub-title,omitempty"`
	Desc     *Text        `xml:"desc,omitempty"`
	Episodes []EpisodeNum `xml:"episode-num,omitempty"`
	Category []Text       `xml:"category,omitempty"`
	Rating   *Rating      `xml:"rating,omitempty"`
	Date     string       `xml:"date,omitempty"`
	Icon     *Icon        `xml:"icon,omitempty"`
	New      *Flag        `xml:"new,omitempty"`
	Premiere *Flag        `xml:"premiere,omitempty"`
}

// Build assembles an XMLTV document from channels and their program
// sequences.
func Build(channels []*guide.Channel, programs map[string][]*guide.Program) *TV {
	tv := &TV{
		SourceInfoName:    "Frndly TV",
		GeneratorInfoName: "frndlyd",
		Channels:          make([]Channel, 0, len(channels)),
	}

	for _, ch := range channels {
		tv.Channels = append(tv.Channels, buildChannel(ch))

		for _, prog := range programs[ch.ID] {
			tv.Programs = append(tv.Programs, buildProgramme(prog, ch.GuideID))
		}
	}

	return tv
}

func buildChannel(ch *guide.Channel) Channel {
	out := Channel{
		ID:           ch.GuideID,
		DisplayNames: []string{ch.Name},
	}

	if ch.Number > 0 {
		out.DisplayNames = append(out.DisplayNames, strconv.Itoa(ch.Number))
	}

	if ch.Logo != "" {
		out.Icon = &Icon{Src: ch.Logo}
	}

	return out
}

func buildProgramme(prog *guide.Program, guideID string) Programme {
	out := Programme{
		Start:   time.Unix(prog.StartTime, 0).UTC().Format(timestampFormat),
		Stop:    time.Unix(prog.EndTime, 0).UTC().Format(timestampFormat),
		Channel: guideID,
		Title:   Text{Lang: "en", Value: prog.Title},
	}

	if prog.EpisodeTitle != "" && prog.EpisodeTitle != prog.Title {
		out.SubTitle = &Text{Lang: "en", Value: prog.EpisodeTitle}
	}

	if prog.Description != "" {
		out.Desc = &Text{Lang: "en", Value: prog.Description}
	}

	if prog.Season > 0 && prog.Episode > 0 {
		out.Episodes = []EpisodeNum{
			{System: "xmltv_ns", Value: fmt.Sprintf("%d.%d.0/1", prog.Season-1, prog.Episode-1)},
			{System: "onscreen", Value: prog.FormatEpisode()},
		}
	}

	for _, genre := range prog.Genres {
		out.Category = append(out.Category, Text{Lang: "en", Value: genre})
	}

	if prog.Rating != "" {
		out.Rating = &Rating{System: "VCHIP", Value: prog.Rating}
	}

	if prog.Year > 0 {
		out.Date = strconv.Itoa(prog.Year)
	}

	if prog.Thumbnail != "" {
		out.Icon = &Icon{Src: prog.Thumbnail}
	}

	if prog.IsNew {
		out.New = &Flag{}
	}

	if prog.IsPremiere {
		out.Premiere = &Flag{}
	}

	return out
}

// Marshal serializes the document with the XML header and XMLTV
// doctype.
func Marshal(tv *TV) ([]byte, error) {
	data, err := xml.MarshalIndent(tv, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal XMLTV: %w", err)
	}

	out := []byte(xml.Header + "<!DOCTYPE tv SYSTEM \"xmltv.dtd\">\n")

	return append(out, data...), nil
}
