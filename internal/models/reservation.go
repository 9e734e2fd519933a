package models

// ReserveStatus is what the board reported for one reserve call.
type ReserveStatus string

const (
	ReserveReserved     ReserveStatus = "reserved"
	ReserveClosed       ReserveStatus = "closed"
	ReserveLimitReached ReserveStatus = "limit_reached"
	ReserveError        ReserveStatus = "error"
	ReserveUnknown      ReserveStatus = "unknown"
)

type ReserveResponse struct {
	Success bool
	Status  ReserveStatus
	Detail  string
}

// ReservationState is the terminal state of one incremental reservation.
type ReservationState string

const (
	ReservationIdle         ReservationState = "idle"
	ReservationReserving    ReservationState = "reserving"
	ReservationConfirmed    ReservationState = "confirmed"
	ReservationLimitReached ReservationState = "limit_reached"
	ReservationClosed       ReservationState = "closed"
	ReservationFailed       ReservationState = "failed"
)

type ReservationResult struct {
	Success        bool
	RequestedTotal int
	BatchSize      int
	TotalReserved  int
	Attempts       int
	State          ReservationState
	Detail         string
}

type VerifyResult struct {
	Found              bool
	Quantity           int
	VerificationFailed bool
}

type LoginResult struct {
	Success bool
	Fatal   bool
	Err     error
}
