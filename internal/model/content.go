package model

// Content is a tagged variant over the known content_type codes, with an
// Unknown fallback for forward compatibility.
type Content struct {
	Type    ContentType
	Delete  *Delete
	Claim   *Claim
	Unknown []byte
}

func decodeContent(contentType ContentType, raw []byte) (Content, error) {
	switch contentType {
	case ContentTypeDelete:
		d, err := DecodeDelete(raw)
		if err != nil {
			return Content{}, err
		}
		return Content{Type: contentType, Delete: &d}, nil
	case ContentTypeClaim:
		c, err := DecodeClaim(raw)
		if err != nil {
			return Content{}, err
		}
		return Content{Type: contentType, Claim: &c}, nil
	default:
		return Content{Type: contentType, Unknown: raw}, nil
	}
}
