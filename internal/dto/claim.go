package dto

// SubmittedFile is one uploaded attachment carried through submission. The
// content has already passed the transport-level size cap when it gets here.
type SubmittedFile struct {
	FileName    string
	ContentType string
	Size        int64
	Content     []byte
}

// SubmitClaimRequest carries a lecturer's monthly claim submission. Hours
// arrive as the raw form string so the service can parse them exactly.
type SubmitClaimRequest struct {
	HoursWorked string
	Notes       string
	Files       []SubmittedFile
}

// RejectClaimRequest carries the mandatory rejection reason.
type RejectClaimRequest struct {
	Reason string `json:"reason" validate:"required,min=3"`
}
