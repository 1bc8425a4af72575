package model

// --- Printer Structures ---

// PrinterRecord is a printer registered server-side for one outlet.
// At most one record per outlet should carry IsDefault; when several do,
// the first one in the list returned by the backend wins.
type PrinterRecord struct {
	Identifier string `json:"identifier"`
	OutletID   string `json:"outletId"`
	IsDefault  bool   `json:"isDefault"`
}

// PickPrinter returns the default record's identifier, else the first one.
func PickPrinter(records []PrinterRecord) (string, bool) {
	if len(records) == 0 {
		return "", false
	}
	for _, r := range records {
		if r.IsDefault && r.Identifier != "" {
			return r.Identifier, true
		}
	}
	if records[0].Identifier == "" {
		return "", false
	}
	return records[0].Identifier, true
}
