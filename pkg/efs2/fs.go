package efs2

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf16"
)

// fileMode bits this package cares about (a narrow subset of Go's
// os.FileMode-compatible POSIX bits, matching what the original
// classifies against).
const (
	modeDir  = 0040000
	modeLnk  = 0120000
	modeSock = 0140000
)

func isDir(mode uint32) bool { return mode&modeFmt == modeDir }
func isSymlink(mode uint32) bool { return mode&modeFmt == modeLnk }

// EFSInfo is the filesystem-wide metadata block (upper_data[FS_INFO]).
type EFSInfo struct {
	RootInode uint32
	Version   uint32
}

const efsInfoMagic = "\xa0\x3e\xb9\xa7"

func readEFSInfo(cluster uint32, pm PageManager) (*EFSInfo, error) {
	if err := pm.ForwardSeek(cluster, 0); err != nil {
		return nil, err
	}
	buf := make([]byte, 24)
	if _, err := io.ReadFull(rawPMReader{pm}, buf); err != nil {
		return nil, err
	}
	if string(buf[:4]) != efsInfoMagic {
		return nil, ErrCorruptStructure
	}
	return &EFSInfo{
		Version:   le32(buf[4:8]),
		RootInode: le32(buf[16:20]),
	}, nil
}

// FileInfo is the classified result of a directory lookup: either a
// real on-disk inode or one whose contents live inline in the
// directory database.
type FileInfo struct {
	Name string
	Mode uint32

	FileSize     int64
	Generation   uint32
	Blocks       uint32
	UserID       uint16
	GroupID      uint16
	ModifiedTime time.Time
	CreatedTime  time.Time
	AccessedTime time.Time

	id     uint32
	real   *INode
	inline *InlineINode
}

// ID returns the inode number for a real (non-inline) entry. Inline
// entries have no inode number of their own.
func (f *FileInfo) ID() uint32 { return f.id }

func fileInfoFromINode(n *INode) *FileInfo {
	return &FileInfo{
		Name: n.Name, Mode: n.Mode, FileSize: int64(n.FileSize),
		Generation: n.Generation, Blocks: n.Blocks,
		UserID: n.UserID, GroupID: n.GroupID,
		ModifiedTime: n.ModifiedTime, CreatedTime: n.CreatedTime, AccessedTime: n.AccessedTime,
		id: n.ID, real: n,
	}
}

func fileInfoFromInline(n *InlineINode) *FileInfo {
	return &FileInfo{
		Name: n.Name, Mode: n.Mode, FileSize: int64(n.FileSize),
		Generation: n.Generation, Blocks: n.Blocks,
		GroupID: n.GroupID, CreatedTime: n.CreatedTime, ModifiedTime: n.ModifiedTime,
		inline: n,
	}
}

// FS is a mounted EFS2 (or CEFS) volume: superblock + page manager +
// optional log overlay + directory database, exposing a small
// POSIX-flavored navigation API.
type FS struct {
	image    io.ReadSeeker
	closer   io.Closer
	encoding func([]byte) string

	super *Superblock
	pm    PageManager

	EFSSize    int64
	EFSStart   int64
	EFSEnd     int64
	BaseOffset int64

	info *EFSInfo
	db   *Database

	curDir uint32
	pwd    string

	closed bool
}

// OpenOptions configures Open.
type OpenOptions struct {
	// BaseOffset is where the volume starts within the image. -1
	// means "autodetect from the first accepted superblock".
	BaseOffset int64
	// SuperblockIndex forces a specific candidate superblock (by scan
	// order) instead of picking the highest-age one that passes CRC.
	SuperblockIndex int
	// EndOffset bounds the superblock scan; -1 means "scan to EOF".
	EndOffset int64
	// Encoding decodes a raw directory-entry name into a string.
	// Defaults to Latin-1 (byte-for-byte passthrough) if nil.
	Encoding func([]byte) string
	// ReplayLog disables journal/log-tail replay when false. Leaving
	// this off should only be used as a last resort against an image
	// whose log won't parse cleanly.
	ReplayLog bool
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// utf16le decodes a directory-entry name stored as little-endian
// UTF-16, as some NV/EFS targets use for unicode filenames. A trailing
// odd byte (a malformed or non-UTF-16 name) is dropped rather than
// erroring, matching the original tool's best-effort decode behavior.
func utf16le(b []byte) string {
	n := len(b) / 2
	units := make([]uint16, n)
	for i := 0; i < n; i++ {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units))
}

// Encodings maps the --encoding / shell "encoding" name to a decoder,
// matching the original dumpefs.py's set_encoding. latin-1 is the
// default; utf-16-le/utf16le select the UTF-16 decoder.
func Encodings(name string) func([]byte) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "latin-1", "latin1", "iso-8859-1":
		return latin1
	case "utf-16-le", "utf-16le", "utf16le", "utf-16":
		return utf16le
	default:
		return nil
	}
}

// Open scans image for EFS2 superblock candidates and mounts the
// volume described by the best match, per opts.
func Open(image io.ReadSeeker, closer io.Closer, opts OpenOptions) (*FS, error) {
	if opts.Encoding == nil {
		opts.Encoding = latin1
	}
	if opts.EndOffset == 0 {
		opts.EndOffset = -1
	}

	if opts.BaseOffset > 0 {
		if _, err := image.Seek(opts.BaseOffset, io.SeekStart); err != nil {
			return nil, err
		}
	}

	type candidate struct {
		offset int64
		super  *Superblock
	}

	var candidates []candidate
	var best *Superblock
	var bestOffset int64

	for {
		if opts.EndOffset >= 0 {
			pos, err := image.Seek(0, io.SeekCurrent)
			if err != nil {
				return nil, err
			}
			if pos >= opts.EndOffset {
				break
			}
		}

		offset, err := image.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, err
		}

		page := make([]byte, 0x4000)
		n, rerr := io.ReadFull(image, page)
		if n < 0x20 {
			break
		}

		sb, perr := ParseSuperblock(page[:n])
		if perr == nil {
			candidates = append(candidates, candidate{offset, sb})
			if best == nil || (sb.Age > best.Age && sb.ComputedChecksum == sb.Checksum) {
				best = sb
				bestOffset = offset
			}
		}

		if rerr != nil {
			break
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoSuperblock
	}

	if opts.SuperblockIndex >= 0 && opts.SuperblockIndex < len(candidates) {
		best = candidates[opts.SuperblockIndex].super
		bestOffset = candidates[opts.SuperblockIndex].offset
	}

	efsSize := int64(best.PageTotal) * int64(best.PageSize)

	var efsStart, efsEnd int64
	if best.IsNAND {
		sbCount := int64(best.Regions[RegionSuperLogEnd]) - int64(best.Regions[RegionSuperLogStart])
		efsEnd = candidates[0].offset + sbCount*int64(best.BlockLength)
		efsStart = efsEnd - efsSize
	} else {
		efsEnd = candidates[len(candidates)-1].offset + int64(best.BlockLength)
		efsStart = candidates[0].offset
	}

	baseOffset := opts.BaseOffset
	if baseOffset <= 0 {
		baseOffset = efsStart
	}

	superblockStartOffset := bestOffset - baseOffset

	fs := &FS{
		image:      image,
		closer:     closer,
		encoding:   opts.Encoding,
		super:      best,
		EFSSize:    efsSize,
		EFSStart:   efsStart,
		EFSEnd:     efsEnd,
		BaseOffset: baseOffset,
		pwd:        "/",
	}

	if best.IsNAND {
		fs.pm = NewNANDPM(best, image, baseOffset)
	} else {
		fs.pm = NewNORPM(best, image, baseOffset)
	}

	if opts.ReplayLog {
		if best.IsNAND {
			log, err := NewNANDLog(best, image, baseOffset, uint32(superblockStartOffset))
			if err != nil {
				return nil, err
			}
			fs.pm.SetLog(log)
		} else {
			norPM := fs.pm.(*NORPM)
			log, _, err := NewNORLog(best, image, baseOffset, norPM)
			if err != nil {
				return nil, err
			}
			fs.pm.SetLog(log)
			for {
				reload, err := log.DoScan()
				if err != nil {
					return nil, err
				}
				if !reload {
					break
				}
			}
		}
	}

	if err := fs.pm.ComputePtables(); err != nil {
		return nil, err
	}

	info, err := readEFSInfo(best.UpperData[UpperDataFSInfo], fs.pm)
	if err != nil {
		return nil, err
	}
	fs.info = info

	db, err := NewDatabase(best.UpperData[UpperDataDBRoot], fs.pm, opts.Encoding)
	if err != nil {
		return nil, err
	}
	fs.db = db

	fs.curDir = info.RootInode

	return fs, nil
}

func (fs *FS) classify(item *DatabaseItem) (*FileInfo, error) {
	switch {
	case item.HasInode:
		n, err := NewINode(item, fs.pm, fs.encoding)
		if err != nil {
			return nil, err
		}
		return fileInfoFromINode(n), nil

	case item.SymlinkPath != nil:
		n := NewInlineINode(fs.encoding(item.Name), modeLnk|0777, 0, time.Unix(0, 0), item.SymlinkPath)
		return fileInfoFromInline(n), nil

	case item.Inline != nil:
		mode := uint32(0100000) | uint32(item.Inline.Mode)
		gid := item.Inline.GroupID
		ctime := item.Inline.CreatedTime
		if !item.Inline.IsLong {
			gid = 0
			ctime = time.Unix(0, 0)
		}
		n := NewInlineINode(fs.encoding(item.Name), mode, gid, ctime, item.Inline.Data)
		return fileInfoFromInline(n), nil
	}

	return nil, ErrCorruptStructure
}

func (fs *FS) resolve(pathname string) (*FileInfo, []string, error) {
	path := pathname
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}

	parts := strings.Split(path, "/")
	var resolved []string

	var inodeNow uint32
	if len(parts) > 0 && len(parts[0]) == 0 {
		resolved = append(resolved, "")
		inodeNow = fs.info.RootInode
		parts = parts[1:]
	} else {
		inodeNow = fs.curDir
	}

	for i, p := range parts {
		if len(p) == 0 {
			continue
		}
		resolved = append(resolved, p)

		expectFile := i >= len(parts)-1
		match := fs.db.Lookup(inodeNow, p)
		if match == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, pathname)
		}

		info, err := fs.classify(match)
		if err != nil {
			return nil, nil, err
		}

		if expectFile {
			return info, resolved, nil
		}

		if !isDir(info.Mode) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotADirectory, pathname)
		}
		inodeNow = match.Inode
	}

	dot := fs.db.Lookup(inodeNow, ".")
	if dot == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, pathname)
	}
	info, err := fs.classify(dot)
	return info, resolved, err
}

func formatName(f *FileInfo) string {
	if isDir(f.Mode) && f.Name != "." && f.Name != ".." {
		return f.Name + "/"
	}
	return f.Name
}

// DirEntry pairs a formatted display name with its classified info.
type DirEntry struct {
	Name string
	Info *FileInfo
}

// Ls lists pathname (the current directory if empty).
func (fs *FS) Ls(pathname string) ([]DirEntry, error) {
	if fs.closed {
		return nil, ErrClosed
	}

	var entries []DirEntry

	if len(pathname) == 0 {
		for _, n := range fs.db.List(fs.curDir) {
			info, err := fs.classify(n)
			if err != nil {
				return nil, err
			}
			entries = append(entries, DirEntry{formatName(info), info})
		}
		return entries, nil
	}

	file, _, err := fs.resolve(pathname)
	if err != nil {
		return nil, err
	}
	if !isDir(file.Mode) {
		return []DirEntry{{formatName(file), file}}, nil
	}

	for _, n := range fs.db.List(file.id) {
		info, err := fs.classify(n)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirEntry{formatName(info), info})
	}
	return entries, nil
}

// LsRecursive lists pathname and every descendant, skipping the
// synthetic "." and ".." entries at each level.
func (fs *FS) LsRecursive(pathname string) ([]DirEntry, error) {
	if fs.closed {
		return nil, ErrClosed
	}

	entries, err := fs.Ls(pathname)
	if err != nil {
		return nil, err
	}

	var out []DirEntry
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, DirEntry{pathname + e.Name, e.Info})
		if isDir(e.Info.Mode) {
			sub, err := fs.LsRecursive(pathname + e.Name)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		}
	}
	return out, nil
}

// Cd changes the current directory.
func (fs *FS) Cd(pathname string) error {
	if fs.closed {
		return ErrClosed
	}

	file, resolved, err := fs.resolve(pathname)
	if err != nil {
		return err
	}
	if !isDir(file.Mode) {
		return fmt.Errorf("%w: %s", ErrNotADirectory, pathname)
	}

	var pwdParts []string
	if !strings.HasPrefix(pathname, "/") {
		trimmed := strings.TrimRight(fs.pwd, "/")
		if len(trimmed) > 0 {
			pwdParts = strings.Split(trimmed, "/")
		}
	}

	for _, fp := range resolved {
		switch fp {
		case "..":
			if len(pwdParts) > 0 {
				pwdParts = pwdParts[:len(pwdParts)-1]
			}
		case ".", "":
		default:
			pwdParts = append(pwdParts, fp)
		}
	}

	fs.pwd = "/" + strings.Join(pwdParts, "/")
	if !strings.HasSuffix(fs.pwd, "/") {
		fs.pwd += "/"
	}
	fs.curDir = file.id

	return nil
}

// Pwd returns the current working directory path.
func (fs *FS) Pwd() string { return fs.pwd }

// Stat resolves pathname without changing the current directory.
func (fs *FS) Stat(pathname string) (*FileInfo, error) {
	if fs.closed {
		return nil, ErrClosed
	}
	file, _, err := fs.resolve(pathname)
	return file, err
}

// Open returns a reader over pathname's contents. With followSymlinks
// set, an inline symlink is resolved by opening its target path the
// same way, so chains of symlinks are followed with no depth limit;
// with it unset, the reader yields the link's target-path bytes.
func (fs *FS) Open(pathname string, followSymlinks bool) (io.ReadCloser, error) {
	if fs.closed {
		return nil, ErrClosed
	}

	file, err := fs.Stat(pathname)
	if err != nil {
		return nil, err
	}

	if file.inline != nil {
		if isSymlink(file.Mode) && followSymlinks {
			return fs.Open(string(file.inline.Data), true)
		}
		return io.NopCloser(newByteReadSeeker(file.inline.Data)), nil
	}

	return NewINodeReader(file.real)
}

// SetEncoding changes the byte-to-string decoder used for directory
// entry names in subsequent lookups.
func (fs *FS) SetEncoding(encoding func([]byte) string) {
	fs.encoding = encoding
	fs.db.encoding = encoding
}

// Close releases the underlying image.
func (fs *FS) Close() error {
	if fs.closed {
		return nil
	}
	fs.closed = true
	if fs.closer != nil {
		return fs.closer.Close()
	}
	return nil
}

// ComputeEFS2Size scans an in-memory buffer for superblock candidates
// and returns the page_total*page_size of whichever one wins the same
// age/checksum race Open uses, without mounting anything.
func ComputeEFS2Size(data []byte) (int64, error) {
	var best *Superblock

	for off := 0; off+0x20 <= len(data); off += 0x4000 {
		end := off + 0x4000
		if end > len(data) {
			end = len(data)
		}
		sb, err := ParseSuperblock(data[off:end])
		if err != nil {
			continue
		}
		if best == nil || (sb.Age > best.Age && sb.ComputedChecksum == sb.Checksum) {
			best = sb
		}
	}

	if best == nil {
		return 0, ErrNoSuperblock
	}

	return int64(best.PageTotal) * int64(best.PageSize), nil
}
