// Package mergeort implements a three-way tree merge engine modeled on
// git's "ort" ("Ostensibly Recursive's Twin") merge strategy: given a
// common-ancestor tree and two descendant trees, it produces a merged tree
// plus per-path conflict state, without touching a working copy or index.
package mergeort

import (
	"github.com/foldvcs/fold/pkg/object"
)

// Mode is a tree-entry mode, reusing the object package's git-compatible
// mode strings so the engine never needs to translate at the store
// boundary.
type Mode string

const (
	ModeNone     Mode = ""
	ModeFile     Mode = Mode(object.TreeModeFile)
	ModeExec     Mode = Mode(object.TreeModeExecutable)
	ModeSymlink  Mode = Mode(object.TreeModeSymlink)
	ModeGitlink  Mode = Mode(object.TreeModeGitlink)
	ModeDir      Mode = Mode(object.TreeModeDir)
)

// Type returns the mode family used for compatibility checks: two modes
// are "compatible" (§3) iff their Type() values agree. Regular and
// executable files share a type; every other mode is its own type.
func (m Mode) Type() Mode {
	if m == ModeNone {
		return ModeNone
	}
	return Mode(object.ModeType(string(m)))
}

func (m Mode) IsDir() bool      { return m == ModeDir }
func (m Mode) IsSymlink() bool  { return m == ModeSymlink }
func (m Mode) IsGitlink() bool  { return m == ModeGitlink }
func (m Mode) IsRegular() bool  { return m == ModeFile || m == ModeExec }

// NullOID marks the absence of an object at a tree position.
const NullOID object.Hash = ""

// VersionInfo identifies a single object at a single tree position.
type VersionInfo struct {
	Mode Mode
	OID  object.Hash
}

// IsNull reports whether this position is empty (path absent on this side).
func (v VersionInfo) IsNull() bool { return v.Mode == ModeNone }

// Equal reports mode-and-OID equality — byte equality in the original
// specification's terms.
func (v VersionInfo) Equal(o VersionInfo) bool {
	return v.Mode == o.Mode && v.OID == o.OID
}

// MergedInfo is the resolved form of a path.
type MergedInfo struct {
	Result         VersionInfo
	DirectoryName  string // interned; see internDir
	BasenameOffset int
	IsNull         bool
	Clean          bool
}

// side indices into ConflictInfo.Stages/Pathnames.
const (
	SideBase = 0
	Side1    = 1
	Side2    = 2
)

// ConflictInfo extends MergedInfo with per-side state. Every path-table
// entry is a *ConflictInfo; entries that the collector (or a later stage)
// fully resolves simply carry Clean=true with Stages/masks left at their
// computed values. A tagged sum type was considered (see DESIGN.md) and
// rejected because every stage past the collector needs to mutate the full
// struct regardless of cleanliness.
type ConflictInfo struct {
	MergedInfo
	Stages      [3]VersionInfo
	Pathnames   [3]string
	DFConflict  bool
	PathConflict bool
	FileMask    uint8
	DirMask     uint8
	MatchMask   uint8
	Processed   bool
}

// PathTable is the central in-memory structure: full path → per-path
// record. Insertion order is irrelevant to the algorithm; the tree writer
// imposes its own traversal order (§4.7).
type PathTable map[string]*ConflictInfo

// RenameMode is the detect_renames option.
type RenameMode int

const (
	RenameOff RenameMode = iota
	RenameOn
	RenameCopy // clamped to RenameOn; copy detection is out of scope.
)

// DirRenameMode is the detect_directory_renames option.
type DirRenameMode int

const (
	DirRenameNone DirRenameMode = iota
	DirRenameConflict
	DirRenameTrue
)

// Variant selects which side a conflicted content merge should prefer.
type Variant int

const (
	VariantNormal Variant = iota
	VariantOurs
	VariantTheirs
)

// Options bundles the engine's tunables (§6).
type Options struct {
	DetectRenames          RenameMode
	DetectDirectoryRenames DirRenameMode
	RenameLimit            int
	RenameScore            int
	RecursiveVariant       Variant
	Renormalize            bool
	XDLOpts                uint32
	Branch1, Branch2, Ancestor string
	SubtreeShift           string
	Verbosity              int
	BufferOutput           bool
}

// DefaultOptions returns the engine's built-in defaults, before any
// .got/mergeconfig.toml overrides are applied (§10).
func DefaultOptions() Options {
	return Options{
		DetectRenames:          RenameOn,
		DetectDirectoryRenames: DirRenameConflict,
		RenameLimit:            1000,
		RenameScore:            50,
		RecursiveVariant:       VariantNormal,
		Branch1:                "HEAD",
		Branch2:                "MERGE_HEAD",
		Ancestor:               "merged common ancestors",
	}
}

// UnmergedEntry is a caller-facing view of one unclean path-table entry.
type UnmergedEntry struct {
	Path         string
	FileMask     uint8
	DirMask      uint8
	PathConflict bool
	DFConflict   bool
	Stages       [3]VersionInfo
	Resolved     VersionInfo // what (if anything) ended up in ResultTreeOID for Path
	Diagnostic   string
}

// Result is the return value of merge_trees / merge_commits.
type Result struct {
	ResultTreeOID   object.Hash
	Clean           bool
	UnmergedEntries []UnmergedEntry
}
