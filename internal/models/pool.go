package models

// PoolState is the approval resolution state of a registered pool.
type PoolState string

// PoolCondition is the sanitary condition recorded at the last inspection.
type PoolCondition string

const (
	StateResolutionExpired PoolState = "RES_EXPIRED"
	StateResolutionValid   PoolState = "RES_VALID"

	ConditionHealthy   PoolCondition = "HEALTHY"
	ConditionUnhealthy PoolCondition = "UNHEALTHY"
)

// ValidPoolState reports whether the value is a known approval state.
func ValidPoolState(state string) bool {
	switch PoolState(state) {
	case StateResolutionExpired, StateResolutionValid:
		return true
	}
	return false
}

// ValidPoolCondition reports whether the value is a known sanitary
// condition.
func ValidPoolCondition(condition string) bool {
	switch PoolCondition(condition) {
	case ConditionHealthy, ConditionUnhealthy:
		return true
	}
	return false
}

// Pool is one swimming pool registration record. The file number is the
// municipal expediente identifier and is unique across the registry.
type Pool struct {
	ID                       int64         `db:"id" json:"id"`
	FileNumber               string        `db:"file_number" json:"file_number"`
	LegalName                string        `db:"legal_name" json:"legal_name"`
	CommercialName           *string       `db:"commercial_name" json:"commercial_name,omitempty"`
	PoolType                 string        `db:"pool_type" json:"pool_type"`
	Address                  string        `db:"address" json:"address"`
	District                 string        `db:"district" json:"district"`
	Capacity                 int           `db:"capacity" json:"capacity"`
	AreaM2                   float64       `db:"area_m2" json:"area_m2"`
	VolumeM3                 float64       `db:"volume_m3" json:"volume_m3"`
	ApprovalResolutionNumber *string       `db:"approval_resolution_number" json:"approval_resolution_number,omitempty"`
	ApprovalDate             *Date         `db:"approval_date" json:"approval_date,omitempty"`
	State                    PoolState     `db:"state" json:"state"`
	Observations             *string       `db:"observations" json:"observations,omitempty"`
	ExpirationDate           *Date         `db:"expiration_date" json:"expiration_date,omitempty"`
	LastInspectionDate       *Date         `db:"last_inspection_date" json:"last_inspection_date,omitempty"`
	CurrentState             PoolCondition `db:"current_state" json:"current_state"`
	Latitude                 *float64      `db:"latitude" json:"latitude,omitempty"`
	Longitude                *float64      `db:"longitude" json:"longitude,omitempty"`
	ImageURL                 *string       `db:"image_url" json:"image_url,omitempty"`
	Rating                   *float64      `db:"rating" json:"rating,omitempty"`
}

// PoolFilter holds the combined query criteria. Empty fields are skipped.
type PoolFilter struct {
	State        string `json:"state,omitempty"`
	CurrentState string `json:"current_state,omitempty"`
	District     string `json:"district,omitempty"`
}

// StateCount is one row of the grouped statistics report.
type StateCount struct {
	State PoolState `db:"state" json:"state"`
	Count int64     `db:"count" json:"count"`
}
