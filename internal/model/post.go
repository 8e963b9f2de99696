package model

import (
	"github.com/futo-org/polycentric-sub000/internal/svcerr"
	"github.com/futo-org/polycentric-sub000/internal/wire"
)

// ImageRange is an inclusive-low/inclusive-high run of logical clocks
// naming the BLOB_SECTION events a POST's image is assembled from, in
// the order they should be concatenated.
type ImageRange struct {
	Low  uint64
	High uint64
}

// ImageManifest names the ordered ranges of BLOB_SECTION events a POST
// references as image data, alongside the uploading process.
type ImageManifest struct {
	Process  Process
	Sections []ImageRange
}

// Post is a POST event's decoded content: optional text plus an
// optional image manifest pointing at a run of BLOB_SECTION events.
type Post struct {
	Content *string
	Image   *ImageManifest
}

func (r ImageRange) Encode() []byte {
	var b []byte
	b = wire.AppendUint64Field(b, 1, r.Low)
	b = wire.AppendUint64Field(b, 2, r.High)
	return b
}

func (m ImageManifest) Encode() []byte {
	var b []byte
	b = wire.AppendMessageField(b, 1, m.Process.Encode())
	for _, s := range m.Sections {
		b = wire.AppendMessageField(b, 2, s.Encode())
	}
	return b
}

func (p Post) Encode() []byte {
	var b []byte
	if p.Content != nil {
		b = wire.AppendStringField(b, 1, *p.Content)
	}
	if p.Image != nil {
		b = wire.AppendMessageField(b, 2, p.Image.Encode())
	}
	return b
}

func DecodePost(raw []byte) (Post, error) {
	var p Post
	err := wire.Parse(raw, func(f wire.Field) error {
		switch f.Num {
		case 1:
			s := string(f.Bytes)
			p.Content = &s
		case 2:
			var m ImageManifest
			ierr := wire.Parse(f.Bytes, func(inner wire.Field) error {
				switch inner.Num {
				case 1:
					proc, perr := DecodeProcess(inner.Bytes)
					if perr != nil {
						return perr
					}
					m.Process = proc
				case 2:
					var r ImageRange
					rerr := wire.Parse(inner.Bytes, func(rf wire.Field) error {
						switch rf.Num {
						case 1:
							r.Low = rf.Varint
						case 2:
							r.High = rf.Varint
						}
						return nil
					})
					if rerr != nil {
						return rerr
					}
					m.Sections = append(m.Sections, r)
				}
				return nil
			})
			if ierr != nil {
				return ierr
			}
			p.Image = &m
		}
		return nil
	})
	if err != nil {
		return Post{}, svcerr.Wrap(svcerr.CodeMalformed, "malformed post", err)
	}
	return p, nil
}
