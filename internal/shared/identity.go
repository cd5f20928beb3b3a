package shared

// Identity describes the authenticated caller and its role flags.
type Identity struct {
	UserID     int64  `json:"userId"`
	Email      string `json:"email"`
	Internal   bool   `json:"internal"`
	Finance    bool   `json:"finance"`
	SuperAdmin bool   `json:"superAdmin"`
}

// CanTrackTime reports whether the caller may drive work-item timers.
func (i *Identity) CanTrackTime() bool {
	return i != nil && (i.Internal || i.SuperAdmin)
}

// CanManageFinance reports whether the caller may touch rates and expenses.
func (i *Identity) CanManageFinance() bool {
	return i != nil && (i.Finance || i.SuperAdmin)
}
