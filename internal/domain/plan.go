package domain

import "fmt"

// Plan bounds what an account may upload. This is a static table, not a
// billing system: the payment side only ever changes which plan name is on
// the user record.
type Plan struct {
	ID                string
	Name              string
	MaxStorageBytes   int64
	MaxVideoSizeBytes int64
	MaxVideos         int
}

const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanPro     = "pro"
)

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

var plans = map[string]Plan{
	PlanFree: {
		ID:                PlanFree,
		Name:              "Free",
		MaxStorageBytes:   5 * gib,
		MaxVideoSizeBytes: 500 * mib,
		MaxVideos:         10,
	},
	PlanStarter: {
		ID:                PlanStarter,
		Name:              "Starter",
		MaxStorageBytes:   100 * gib,
		MaxVideoSizeBytes: 5 * gib,
		MaxVideos:         200,
	},
	PlanPro: {
		ID:                PlanPro,
		Name:              "Pro",
		MaxStorageBytes:   1000 * gib,
		MaxVideoSizeBytes: 50 * gib,
		MaxVideos:         0, // unlimited
	},
}

// PlanByID returns the plan for the given id, falling back to free for
// unknown names so a bad record never blocks an account entirely.
func PlanByID(id string) Plan {
	if p, ok := plans[id]; ok {
		return p
	}
	return plans[PlanFree]
}

// CanUploadVideo checks an upload of size bytes against the plan's per-video
// and total-storage ceilings. A non-empty reason is returned on rejection.
func (p Plan) CanUploadVideo(storageUsed, size int64) (bool, string) {
	if size <= 0 {
		return false, "file size must be positive"
	}
	if p.MaxVideoSizeBytes > 0 && size > p.MaxVideoSizeBytes {
		return false, fmt.Sprintf("video exceeds the %s plan size limit of %d bytes", p.Name, p.MaxVideoSizeBytes)
	}
	if p.MaxStorageBytes > 0 && storageUsed+size > p.MaxStorageBytes {
		return false, fmt.Sprintf("not enough storage left on the %s plan", p.Name)
	}
	return true, ""
}
