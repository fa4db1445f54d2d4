package domain

import "time"

// PendingMutation is a scan buffered in the local queue until it is
// replayed against the reconciliation server.
type PendingMutation struct {
	ID          string
	Barcode     string
	Action      Action
	ProductData ProductData
	Zone        string
	CreatedAt   time.Time
	Synced      bool
}

// Request builds the reconcile request that replays this mutation. The
// mutation id travels along so the server can deduplicate replays.
func (m PendingMutation) Request() ReconcileRequest {
	pd := m.ProductData
	if m.Zone != "" {
		pd.Zone = m.Zone
	}
	return ReconcileRequest{
		MutationID:  m.ID,
		Action:      m.Action,
		Barcode:     m.Barcode,
		Zone:        m.Zone,
		ProductData: pd,
	}
}

// LocalRecord is the device-side projection of a barcode. Zone is not part
// of the key: a device tracks one working zone per session.
type LocalRecord struct {
	Barcode      string    `json:"barcode"`
	Product      string    `json:"product"`
	Colour       string    `json:"colour"`
	Size         string    `json:"size"`
	Quantity     int       `json:"quantity"`
	Zone         string    `json:"zone"`
	LastModified time.Time `json:"lastModified"`
}

type ActivityEntry struct {
	UserID    string
	Action    Action
	Barcode   string
	Zone      string
	Quantity  int
	IsNewItem bool
	At        time.Time
}
