package domain

import "time"

// Principal is the authenticated actor behind a transition.
type Principal struct {
	ID        int64  `json:"id,string"`
	Name      string `json:"name"`
	IsManager bool   `json:"is_manager"`
}

// Associate is the stored account a Principal is resolved from.
type Associate struct {
	ID           int64     `json:"id,string"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	IsManager    bool      `json:"is_manager"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a *Associate) Principal() *Principal {
	return &Principal{ID: a.ID, Name: a.Name, IsManager: a.IsManager}
}
