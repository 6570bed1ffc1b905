package qqmusic

import (
	"strings"

	"github.com/samber/mo"
)

type Quality string

const (
	QualityAAC128 Quality = "aac_128"
	QualityMP3320 Quality = "mp3_320"
	QualityFLAC   Quality = "flac"
)

// ParseQuality never fails; blank and unknown values fall back to aac_128.
func ParseQuality(s string) Quality {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityAAC128, QualityMP3320, QualityFLAC:
		return q
	default:
		return QualityAAC128
	}
}

func (q Quality) IsKnown() bool {
	switch q {
	case QualityAAC128, QualityMP3320, QualityFLAC:
		return true
	default:
		return false
	}
}

type fileType struct {
	prefix string
	ext    string
}

var (
	fileTypeFLAC   = fileType{prefix: "F000", ext: ".flac"}
	fileTypeMP3320 = fileType{prefix: "M800", ext: ".mp3"}
	fileTypeMP3128 = fileType{prefix: "M500", ext: ".mp3"}
	fileTypeAAC128 = fileType{prefix: "C400", ext: ".m4a"}
)

// FilenameCandidates lists the remote file names to request for quality, in
// fallback order. The AAC encoding is keyed by song mid; every other encoding
// needs the media mid and is skipped when it is absent.
func FilenameCandidates(quality Quality, songMID string, mediaMID mo.Option[string]) []string {
	out := make([]string, 0, 4)
	bySong := func(t fileType) {
		out = append(out, t.prefix+songMID+t.ext)
	}
	byMedia := func(t fileType) {
		if mid, ok := mediaMID.Get(); ok && strings.TrimSpace(mid) != "" {
			out = append(out, t.prefix+mid+t.ext)
		}
	}

	switch ParseQuality(string(quality)) {
	case QualityFLAC:
		byMedia(fileTypeFLAC)
		byMedia(fileTypeMP3320)
		bySong(fileTypeAAC128)
		byMedia(fileTypeMP3128)
	case QualityMP3320:
		byMedia(fileTypeMP3320)
		byMedia(fileTypeMP3128)
		bySong(fileTypeAAC128)
	default:
		bySong(fileTypeAAC128)
		byMedia(fileTypeMP3128)
		byMedia(fileTypeMP3320)
	}
	return out
}
