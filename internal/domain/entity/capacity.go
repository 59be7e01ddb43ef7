package entity

// CapacitySnapshot вычисляется по набору регистраций для одного запроса
type CapacitySnapshot struct {
	VerifiedCount   int64 `json:"current_count"`
	MaxParticipants int64 `json:"max_participants"`
}

// Available сообщает, что осталось хотя бы одно место
func (c CapacitySnapshot) Available() bool {
	return c.VerifiedCount < c.MaxParticipants
}

// Remaining не бывает меньше нуля
func (c CapacitySnapshot) Remaining() int64 {
	if c.VerifiedCount >= c.MaxParticipants {
		return 0
	}
	return c.MaxParticipants - c.VerifiedCount
}

// DailyCount — число подтверждений за календарный день
type DailyCount struct {
	Day   string `json:"date"`
	Count int64  `json:"count"`
}
