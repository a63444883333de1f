package domain

// RecordID is a sequential record identifier assigned at mint.
type RecordID uint64

// Record is a minted multi-holder asset with gated content.
// Corresponds to the records table in PostgreSQL.
type Record struct {
	ID             RecordID // sequential, immutable
	ContentPointer string   // content-addressed locator (e.g. IPFS CID)
	Secret         string   // access credential, released only to holders
	TotalSupply    uint64   // units minted, immutable
	Creator        Address  // minter
}

// RecordInfo is the public view of a Record. It never carries the secret
// or the content pointer.
type RecordInfo struct {
	ID          RecordID `json:"recordId"`
	TotalSupply uint64   `json:"totalSupply"`
	Creator     Address  `json:"creator"`
}

// Info returns the public view of r.
func (r *Record) Info() RecordInfo {
	return RecordInfo{ID: r.ID, TotalSupply: r.TotalSupply, Creator: r.Creator}
}

// Content is the gated payload of a record.
type Content struct {
	ContentPointer string `json:"contentPointer"`
	Secret         string `json:"secret"`
}

// Descriptor is the static, record-independent metadata of the collection.
type Descriptor struct {
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description" mapstructure:"description"`
	ExternalURL string `json:"external_url" mapstructure:"external_url"`
	Image       string `json:"image" mapstructure:"image"`
	URI         string `json:"uri" mapstructure:"uri"`
}
