package model

// DeleteStatusOK is the status recorded for an asset removed successfully.
const DeleteStatusOK = "OK"

// DeleteResult is the outcome of one removal in a delete batch.
type DeleteResult struct {
	// Asset is the asset as it was loaded before its removal was attempted.
	Asset  *Asset `json:"asset"`
	Status string `json:"status"`
}

// OK returns true when the asset was removed.
func (r DeleteResult) OK() bool { return r.Status == DeleteStatusOK }

// DeleteReport holds one result per asset in a delete batch, in removal order.
type DeleteReport []DeleteResult

// Failed returns the results of assets that were not removed.
func (d DeleteReport) Failed() DeleteReport {
	failed := DeleteReport{}

	for _, r := range d {
		if !r.OK() {
			failed = append(failed, r)
		}
	}

	return failed
}

// Names returns the asset names in report order.
func (d DeleteReport) Names() []string {
	names := make([]string, 0, len(d))
	for _, r := range d {
		names = append(names, r.Asset.Name)
	}

	return names
}
