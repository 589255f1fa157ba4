package workshop

import "time"

type Appointment struct {
	ID          int64     `json:"appointmentId"`
	CustomerID  int64     `json:"customerId"`
	VehicleID   int64     `json:"vehicleId"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

type Mechanic struct {
	ID   int64  `json:"mechanicId"`
	Name string `json:"name"`
}
