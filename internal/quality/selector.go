// Package quality ranks the encodings an engine reports and picks one for a
// requested quality token.
package quality

import (
	"strconv"
	"strings"

	"github.com/far4599/video-downloader-api/internal/apierror"
	"github.com/far4599/video-downloader-api/internal/models"
)

type tokenKind int

const (
	kindBest tokenKind = iota
	kindWorst
	kindHeight
)

// Token is a parsed quality request: best, worst or a target height.
type Token struct {
	kind   tokenKind
	height int
}

var (
	Best  = Token{kind: kindBest}
	Worst = Token{kind: kindWorst}
)

func Height(h int) Token {
	return Token{kind: kindHeight, height: h}
}

// ParseToken accepts "best", "worst", "720p" or "720". Empty means best.
func ParseToken(s string) (Token, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "best":
		return Best, nil
	case "worst":
		return Worst, nil
	}

	h, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	if err != nil || h <= 0 {
		return Token{}, apierror.New(apierror.ValidationError, apierror.MsgInvalidQuality)
	}

	return Height(h), nil
}

func (t Token) String() string {
	switch t.kind {
	case kindWorst:
		return "worst"
	case kindHeight:
		return strconv.Itoa(t.height) + "p"
	default:
		return "best"
	}
}

// Selection is the chosen encoding. Audio is set when Video carries no
// sound and has to be muxed with a separate stream.
type Selection struct {
	Video models.Format
	Audio *models.Format
}

func (s Selection) NeedsMerge() bool {
	return s.Audio != nil
}

func (s Selection) height() int {
	return s.Video.Height
}

func (s Selection) bitrate() float64 {
	b := s.Video.Bitrate
	if s.Audio != nil {
		b += audioBitrate(*s.Audio)
	}
	return b
}

// Select picks one candidate from formats for token t. With pairAudio set,
// video-only streams compete too, each paired with a compatible audio-only
// stream. Fails with NO_DOWNLOAD_URL when nothing is usable.
func Select(formats []models.Format, t Token, pairAudio bool) (*Selection, error) {
	var muxed, videoOnly, audioOnly []models.Format
	for _, f := range formats {
		if f.URL == "" {
			continue
		}
		switch {
		case f.Muxed():
			muxed = append(muxed, f)
		case f.HasVideo:
			videoOnly = append(videoOnly, f)
		case f.HasAudio:
			audioOnly = append(audioOnly, f)
		}
	}

	candidates := make([]Selection, 0, len(muxed)+len(videoOnly))
	for _, f := range muxed {
		candidates = append(candidates, Selection{Video: f})
	}

	if pairAudio && len(audioOnly) > 0 {
		for _, v := range videoOnly {
			a := pickAudio(v, audioOnly, t.kind == kindWorst)
			candidates = append(candidates, Selection{Video: v, Audio: &a})
		}
	}

	if len(candidates) == 0 {
		for _, f := range videoOnly {
			candidates = append(candidates, Selection{Video: f})
		}
	}

	if len(candidates) == 0 {
		for _, f := range audioOnly {
			candidates = append(candidates, Selection{Video: f})
		}
	}

	if len(candidates) == 0 {
		return nil, apierror.New(apierror.NoDownloadURL, apierror.MsgNoDownloadURL)
	}

	sel := pick(candidates, t)

	return &sel, nil
}

func pick(candidates []Selection, t Token) Selection {
	switch t.kind {
	case kindWorst:
		return first(candidates, func(a, b Selection) bool { return ranked(a, b, true) })
	case kindHeight:
		var exact, below, above []Selection
		for _, c := range candidates {
			switch h := c.height(); {
			case h == t.height:
				exact = append(exact, c)
			case h < t.height:
				below = append(below, c)
			default:
				above = append(above, c)
			}
		}

		if len(exact) > 0 {
			return first(exact, better)
		}
		if len(below) > 0 {
			return first(below, better)
		}

		lowest := above[0].height()
		for _, c := range above[1:] {
			if c.height() < lowest {
				lowest = c.height()
			}
		}
		var nearest []Selection
		for _, c := range above {
			if c.height() == lowest {
				nearest = append(nearest, c)
			}
		}
		return first(nearest, better)
	default:
		return first(candidates, better)
	}
}

func first(candidates []Selection, less func(a, b Selection) bool) Selection {
	chosen := candidates[0]
	for _, c := range candidates[1:] {
		if less(c, chosen) {
			chosen = c
		}
	}
	return chosen
}

func better(a, b Selection) bool {
	return ranked(a, b, false)
}

// ranked reports whether a should be chosen over b when ordering by
// (height, bitrate), descending unless asc is set.
func ranked(a, b Selection, asc bool) bool {
	if a.height() != b.height() {
		if asc {
			return a.height() < b.height()
		}
		return a.height() > b.height()
	}
	if a.bitrate() != b.bitrate() {
		if asc {
			return a.bitrate() < b.bitrate()
		}
		return a.bitrate() > b.bitrate()
	}

	return tieBreak(a, b)
}

func tieBreak(a, b Selection) bool {
	aMP4, bMP4 := a.Video.Ext == "mp4", b.Video.Ext == "mp4"
	if aMP4 != bMP4 {
		return aMP4
	}
	if a.NeedsMerge() != b.NeedsMerge() {
		return !a.NeedsMerge()
	}
	if a.Video.FormatID != b.Video.FormatID {
		return a.Video.FormatID < b.Video.FormatID
	}
	if a.Audio != nil && b.Audio != nil {
		return a.Audio.FormatID < b.Audio.FormatID
	}
	return false
}

var compatibleAudio = map[string][]string{
	"mp4":  {"m4a", "mp4", "aac"},
	"webm": {"webm", "opus", "weba"},
}

// pickAudio returns the audio stream to mux with v: one in a matching
// container if any, the highest bitrate unless lowest is set.
func pickAudio(v models.Format, audio []models.Format, lowest bool) models.Format {
	pool := audio
	if exts, ok := compatibleAudio[v.Ext]; ok {
		var matching []models.Format
		for _, a := range audio {
			for _, ext := range exts {
				if a.Ext == ext {
					matching = append(matching, a)
					break
				}
			}
		}
		if len(matching) > 0 {
			pool = matching
		}
	}

	chosen := pool[0]
	for _, a := range pool[1:] {
		ab, cb := audioBitrate(a), audioBitrate(chosen)
		switch {
		case ab != cb && lowest:
			if ab < cb {
				chosen = a
			}
		case ab != cb:
			if ab > cb {
				chosen = a
			}
		case a.FormatID < chosen.FormatID:
			chosen = a
		}
	}

	return chosen
}

func audioBitrate(f models.Format) float64 {
	if f.AudioBitrate > 0 {
		return f.AudioBitrate
	}
	return f.Bitrate
}
