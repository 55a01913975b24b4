package pdf

// Field is one labeled value. Values are already formatted; an empty value
// still renders, as an empty line.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Section groups fields under an optional heading.
type Section struct {
	Heading string  `json:"heading,omitempty"`
	Fields  []Field `json:"fields"`
}

// SignatureBlock is a signature as it appears on paper: either an image
// (drawn or uploaded) or typed text, followed by the signer details.
type SignatureBlock struct {
	SignerName   string `json:"signer_name"`
	Role         string `json:"role"`
	Relationship string `json:"relationship,omitempty"`
	Image        []byte `json:"-"`
	ImageType    string `json:"image_type,omitempty"`
	Text         string `json:"text,omitempty"`
	SignedAt     string `json:"signed_at"`
}

// Document is one record ready for layout.
type Document struct {
	Title      string           `json:"title"`
	Subtitle   string           `json:"subtitle,omitempty"`
	Sections   []Section        `json:"sections"`
	Signatures []SignatureBlock `json:"signatures,omitempty"`
}
