// Package models holds the GORM row types shared by every service package.
// Entities reference each other by id rather than by embedding — a map's
// mappers are loaded per-request by the owning service, never cached on the
// struct itself.
package models

import (
	"time"

	"github.com/kz-go/kz-api/internal/perms"
	"github.com/kz-go/kz-api/internal/steamid"
)

// GlobalStatus is a map's review state.
type GlobalStatus string

const (
	StatusInvalid    GlobalStatus = "invalid"
	StatusInTesting  GlobalStatus = "in-testing"
	StatusApproved   GlobalStatus = "approved"
)

// Mode is a run style.
type Mode string

const (
	ModeVanilla Mode = "vanilla"
	ModeClassic Mode = "classic"
)

// RankedStatus controls whether a filter's records count toward rankings.
type RankedStatus string

const (
	RankedStatusRanked   RankedStatus = "ranked"
	RankedStatusUnranked RankedStatus = "unranked"
)

// ServerStatus is the server-liveness state machine's current state.
type ServerStatus string

const (
	ServerAlive    ServerStatus = "alive"
	ServerDead     ServerStatus = "dead"
	ServerVeryDead ServerStatus = "very-dead"
)

// User is created on first successful Steam login and mutated by admin
// updates or subsequent logins.
type User struct {
	SteamID      steamid.ID  `gorm:"primaryKey;column:steam_id"`
	Username     string      `gorm:"not null"`
	Permissions  perms.Flags `gorm:"not null;default:0"`
	RegisteredAt time.Time   `gorm:"not null;autoCreateTime"`
	LastLoginAt  *time.Time
}

func (User) TableName() string { return "users" }

// Session is a long-lived browser login backed by a random 128-bit id.
// Liveness is purely ExpiresAt > now(); invalidated sessions are never
// deleted, only filtered out on read.
type Session struct {
	ID        string    `gorm:"primaryKey;type:char(32)"` // hex of a 128-bit random value
	UserID    steamid.ID `gorm:"not null;index;column:user_id"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"`
	ExpiresAt time.Time  `gorm:"not null;index"`
}

func (Session) TableName() string { return "sessions" }

// Live reports whether the session is still usable for authentication.
func (s Session) Live(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// ApiKey authenticates a named external service (e.g. a CI publisher) via
// exact-match bearer token.
type ApiKey struct {
	Key         string `gorm:"primaryKey;type:char(36)"` // random UUID
	ServiceName string `gorm:"not null;uniqueIndex"`
	ExpiresAt   *time.Time
}

func (ApiKey) TableName() string { return "api_keys" }

// Live reports whether the key has not expired. A nil ExpiresAt means the
// key never expires.
func (k ApiKey) Live(now time.Time) bool {
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// PluginVersion is strictly totally ordered by Semver; a newly submitted
// version must be greater than the current maximum.
type PluginVersion struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	Semver      string    `gorm:"not null;uniqueIndex"`
	GitRevision string    `gorm:"not null;uniqueIndex;type:char(40)"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
}

func (PluginVersion) TableName() string { return "plugin_versions" }

// Server is a registered game server approved by an admin.
type Server struct {
	ID                    uint64     `gorm:"primaryKey;autoIncrement"`
	Name                  string     `gorm:"not null;uniqueIndex"`
	Host                  string     `gorm:"not null;uniqueIndex:idx_servers_host_port"`
	Port                  uint16     `gorm:"not null;uniqueIndex:idx_servers_host_port"`
	OwnerSteamID          steamid.ID `gorm:"not null;index;column:owner_steam_id"`
	ApiKey                string     `gorm:"not null;uniqueIndex;type:char(36)"`
	CurrentPluginVersionID *uint64
	LastSeenAt            time.Time    `gorm:"not null"`
	Status                ServerStatus `gorm:"not null;default:alive"`
	ApprovedAt             time.Time   `gorm:"not null;autoCreateTime"`
}

func (Server) TableName() string { return "servers" }

// Map is a workshop-backed level; it must always carry at least one mapper
// and at least one course once committed.
type Map struct {
	ID          uint64       `gorm:"primaryKey;autoIncrement"`
	Name        string       `gorm:"not null;uniqueIndex"`
	Description string
	GlobalStatus GlobalStatus `gorm:"not null;default:in-testing"`
	WorkshopID  uint64        `gorm:"not null"`
	Checksum    string        `gorm:"not null;type:char(32)"` // MD5 hex
	CreatedAt   time.Time     `gorm:"not null;autoCreateTime"`
}

func (Map) TableName() string { return "maps" }

// Mapper is the map-level many-to-many join to users.
type Mapper struct {
	MapID   uint64     `gorm:"primaryKey;column:map_id"`
	UserID  steamid.ID `gorm:"primaryKey;column:user_id"`
	AddedAt time.Time  `gorm:"not null;autoCreateTime"`
}

func (Mapper) TableName() string { return "mappers" }

// Course is a sub-route within a map; every map has one or more.
type Course struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	MapID       uint64 `gorm:"not null;index;column:map_id"`
	Name        string `gorm:"not null"`
	Description string
}

func (Course) TableName() string { return "courses" }

// CourseMapper is the course-level many-to-many join to users.
type CourseMapper struct {
	CourseID uint64     `gorm:"primaryKey;column:course_id"`
	UserID   steamid.ID `gorm:"primaryKey;column:user_id"`
	AddedAt  time.Time  `gorm:"not null;autoCreateTime"`
}

func (CourseMapper) TableName() string { return "course_mappers" }

// CourseFilter is the (course, mode, teleports) triple records are ranked
// against. Exactly one row exists per triple per course.
type CourseFilter struct {
	ID           uint64       `gorm:"primaryKey;autoIncrement"`
	CourseID     uint64       `gorm:"not null;uniqueIndex:idx_filters_course_mode_tp;column:course_id"`
	Mode         Mode         `gorm:"not null;uniqueIndex:idx_filters_course_mode_tp"`
	Teleports    bool         `gorm:"not null;uniqueIndex:idx_filters_course_mode_tp"`
	Tier         int          `gorm:"not null"`
	RankedStatus RankedStatus `gorm:"not null;default:ranked"`
	Notes        string
}

func (CourseFilter) TableName() string { return "course_filters" }

// Unranked reports whether this filter is outside the points system
// entirely: its ranked status is unranked, or its tier is 9 or 10 (tiers
// that never award points).
func (f CourseFilter) Unranked() bool {
	return f.RankedStatus == RankedStatusUnranked || f.Tier >= 9
}

// BhopStats captures auxiliary jump-quality telemetry submitted alongside a
// record; it does not affect points, only display.
type BhopStats struct {
	Perfs     uint32 `json:"perfs"`
	TotalJumps uint32 `json:"total_jumps"`
}

// Record is an immutable, append-only run submission.
type Record struct {
	ID              uint64     `gorm:"primaryKey;autoIncrement"`
	PlayerID        steamid.ID `gorm:"not null;index;column:player_id"`
	FilterID        uint64     `gorm:"not null;index;column:filter_id"`
	ServerID        uint64     `gorm:"not null;index;column:server_id"`
	PluginVersionID uint64     `gorm:"not null;column:plugin_version_id"`
	TeleportsUsed   uint32     `gorm:"not null"`
	TimeSeconds     float64    `gorm:"not null"`
	BhopPerfs       uint32     `gorm:"not null;default:0"`
	BhopTotalJumps  uint32     `gorm:"not null;default:0"`
	StyleFlags      uint32     `gorm:"not null;default:0"`
	CreatedAt       time.Time  `gorm:"not null;autoCreateTime:micro;index"`
}

func (Record) TableName() string { return "records" }

// Ban is paired with an optional Unban; a player with any active
// (unreverted, unexpired) ban cannot receive another one.
type Ban struct {
	ID        uint64     `gorm:"primaryKey;autoIncrement"`
	PlayerID  steamid.ID `gorm:"not null;index;column:player_id"`
	ServerID  *uint64    `gorm:"column:server_id"` // nil for admin-issued bans
	Reason    string     `gorm:"not null"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime"`
	ExpiresAt *time.Time
	BannedBy  *steamid.ID `gorm:"column:banned_by"`
}

func (Ban) TableName() string { return "bans" }

// Unban reverts a Ban; its existence is what makes a ban "reverted".
type Unban struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement"`
	BanID      uint64     `gorm:"not null;uniqueIndex;column:ban_id"`
	Reason     string     `gorm:"not null"`
	CreatedAt  time.Time  `gorm:"not null;autoCreateTime"`
	UnbannedBy *steamid.ID `gorm:"column:unbanned_by"`
}

func (Unban) TableName() string { return "unbans" }

// ReplayRef points at an opaque replay blob stored out-of-band in object
// storage, keyed by the record it belongs to.
type ReplayRef struct {
	RecordID  uint64 `gorm:"primaryKey;column:record_id"`
	ObjectKey string `gorm:"not null"`
	SizeBytes int64  `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime"`
}

func (ReplayRef) TableName() string { return "replay_refs" }
