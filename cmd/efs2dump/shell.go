package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/qcefs/efs2dump/pkg/efs2"
)

// filemode renders the same ls -l style permission string the
// reference shell gets for free from Python's stat.filemode.
func filemode(mode uint32) string {
	var b strings.Builder

	switch mode & 0170000 {
	case 0040000:
		b.WriteByte('d')
	case 0120000:
		b.WriteByte('l')
	case 0140000:
		b.WriteByte('s')
	case 0020000:
		b.WriteByte('c')
	case 0060000:
		b.WriteByte('b')
	case 0010000:
		b.WriteByte('p')
	default:
		b.WriteByte('-')
	}

	perm := mode & 0777
	rwx := func(bitsVal uint32) string {
		s := [3]byte{'-', '-', '-'}
		if bitsVal&4 != 0 {
			s[0] = 'r'
		}
		if bitsVal&2 != 0 {
			s[1] = 'w'
		}
		if bitsVal&1 != 0 {
			s[2] = 'x'
		}
		return string(s[:])
	}
	b.WriteString(rwx((perm >> 6) & 7))
	b.WriteString(rwx((perm >> 3) & 7))
	b.WriteString(rwx(perm & 7))

	return b.String()
}

// lsTable renders a directory listing as a borderless grid of mode,
// modified time, created time, and name columns.
func lsTable(entries []efs2.DirEntry) {
	rows := [][]string{{"mode", "modified", "created", "name"}}
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		rows = append(rows, []string{
			filemode(e.Info.Mode),
			e.Info.ModifiedTime.Format("2006-01-02 15:04:05"),
			e.Info.CreatedTime.Format("2006-01-02 15:04:05"),
			e.Name,
		})
	}
	if len(rows) > 1 {
		plainTable(rows)
	}
}

// currentEncodingName tracks the shell's active --encoding for the
// bare "encoding" display command; the shell's "encoding NAME" command
// updates it alongside fs.SetEncoding.
var currentEncodingName = "latin-1"

// runShell drives the interactive REPL described in the reference
// tooling: ls/dir, cd, dump, pwd, encoding, cat, hd/hexdump, file,
// help, exit.
func runShell(fs *efs2.FS, sourceName string) error {
	parser := shellwords.NewParser()

	if flagEncoding != "" {
		currentEncodingName = flagEncoding
	}

	fmt.Println("EFS2 shell")
	fmt.Printf("source file: %s @ 0x%08x\n", sourceName, fs.BaseOffset)

	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Printf("[%s]> ", fs.Pwd())
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		cmd, err := parser.Parse(line)
		if err != nil {
			fmt.Printf("parse error: %v\n", err)
			continue
		}
		if len(cmd) == 0 {
			continue
		}

		if err := runShellCommand(fs, cmd); err != nil {
			if err == errShellExit {
				return nil
			}
			fmt.Printf("%s: %v\n", cmd[0], err)
		}
	}
}

var errShellExit = fmt.Errorf("exit")

func runShellCommand(fs *efs2.FS, cmd []string) error {
	switch cmd[0] {
	case "exit":
		return errShellExit

	case "ls", "dir":
		targets := cmd[1:]
		if len(targets) == 0 {
			targets = []string{""}
		}
		multi := len(targets) > 1
		for _, t := range targets {
			if multi {
				fmt.Printf("%s:\n", t)
			}
			entries, err := fs.Ls(t)
			if err != nil {
				return err
			}
			lsTable(entries)
		}

	case "cd":
		if len(cmd) > 2 {
			fmt.Println("cd: too many arguments")
			return nil
		}
		if len(cmd) == 2 {
			return fs.Cd(cmd[1])
		}

	case "dump":
		if len(cmd) != 3 {
			fmt.Println("dump: usage: dump filename destination")
			return nil
		}
		return shellDump(fs, cmd[1], cmd[2])

	case "pwd":
		fmt.Println(fs.Pwd())

	case "encoding":
		switch len(cmd) {
		case 1:
			fmt.Println(currentEncodingName)
		case 2:
			dec := efs2.Encodings(cmd[1])
			if dec == nil {
				fmt.Printf("encoding: unknown encoding %q (try latin-1 or utf-16-le)\n", cmd[1])
				return nil
			}
			fs.SetEncoding(dec)
			currentEncodingName = cmd[1]
		default:
			fmt.Println("encoding: too many arguments")
		}

	case "cat":
		if len(cmd) == 1 {
			fmt.Println("cat: usage: cat files...")
			return nil
		}
		for _, f := range cmd[1:] {
			rc, err := fs.Open(f, true)
			if err != nil {
				return err
			}
			_, err = io.Copy(os.Stdout, rc)
			rc.Close()
			if err != nil {
				return err
			}
		}

	case "hd", "hexdump":
		if len(cmd) == 1 {
			fmt.Println("hexdump: usage: hexdump files...")
			return nil
		}
		for _, f := range cmd[1:] {
			rc, err := fs.Open(f, true)
			if err != nil {
				return err
			}
			data, err := ioutil.ReadAll(rc)
			rc.Close()
			if err != nil {
				return err
			}
			fmt.Print(hex.Dump(data))
		}

	case "file":
		if len(cmd) == 1 {
			fmt.Println("file: usage: file files...")
			return nil
		}
		for _, f := range cmd[1:] {
			info, err := fs.Stat(f)
			if err != nil {
				return err
			}
			fmt.Printf("%s: \n", f)
			fmt.Printf("    size: %s (%d bytes)\n", printableSize(info.FileSize), info.FileSize)
			fmt.Printf("    modified time: %s\n", info.ModifiedTime)
			fmt.Printf("    created time: %s\n", info.CreatedTime)
			fmt.Printf("    number of blocks: %d\n", info.Blocks)
			fmt.Printf("    generation: %d\n", info.Generation)
		}

	case "help":
		fmt.Println("ls [files...] (list all files and folders in this directory)")
		fmt.Println("dir [files...] (ditto)")
		fmt.Println("cd [dir] (change the working directory)")
		fmt.Println("dump filename destination (read a file and save it, or 'prefix*' destdir for a recursive dump)")
		fmt.Println("pwd (get the current working directory)")
		fmt.Println("encoding [name] (show, or switch to, the encoding used to read node filenames; latin-1 or utf-16-le)")
		fmt.Println("cat files... (read files and output to console)")
		fmt.Println("hexdump files... (read files and output in hexdump)")
		fmt.Println("hd files... (short for hexdump)")
		fmt.Println("file files... (get file info)")
		fmt.Println("help (show this help message)")

	default:
		fmt.Printf("%s: command not found\n", cmd[0])
	}

	return nil
}

// shellDump implements the single-file and "prefix*"-recursive forms
// of the shell's dump command.
func shellDump(fs *efs2.FS, src, dest string) error {
	if strings.HasSuffix(src, "*") {
		prefix := strings.TrimSuffix(src, "*")
		return dumpRecursive(fs, prefix, dest)
	}

	rc, err := fs.Open(src, true)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

// dumpRecursive implements "dump prefix* destdir": prefix names a
// directory (trailing slash optional) whose entire subtree is written
// under destDir, preserving relative paths.
func dumpRecursive(fs *efs2.FS, prefix, destDir string) error {
	dir := prefix
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}

	entries, err := fs.LsRecursive(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if strings.HasSuffix(e.Name, "/") {
			continue // directories are created implicitly via MkdirAll below
		}
		rel := strings.TrimPrefix(e.Name, dir)
		dest := filepath.Join(destDir, rel)

		rc, err := fs.Open(e.Name, true)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			rc.Close()
			return err
		}
		out, err := os.Create(dest)
		if err != nil {
			rc.Close()
			return err
		}
		_, cerr := io.Copy(out, rc)
		rc.Close()
		out.Close()
		if cerr != nil {
			return cerr
		}
	}
	return nil
}
