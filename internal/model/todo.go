package model

import "time"

// Todo is the domain model for a todo entry as the remote API serves it.
type Todo struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	UserID    int       `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NextID returns 1 + the largest id in todos, or 1 when todos is empty.
// Ids are computed client-side and never reconciled with the server.
func NextID(todos []Todo) int {
	highest := 0
	for _, t := range todos {
		if t.ID > highest {
			highest = t.ID
		}
	}
	return highest + 1
}

// Stats counts completed and active items.
func Stats(todos []Todo) (done, active int) {
	for _, t := range todos {
		if t.Completed {
			done++
		} else {
			active++
		}
	}
	return
}
