package ftptest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const dataTimeout = 5 * time.Second

// handle runs one command. It returns false when the session should end.
func (ss *session) handle(cmd, arg string) bool {
	switch cmd {
	case "USER":
		ss.user = arg
		ss.loggedIn = false
		ss.reply(331, "Password required.")
		return true
	case "PASS":
		if !ss.server.authenticate(ss.user, arg) {
			ss.reply(530, "Login incorrect.")
			return true
		}
		ss.loggedIn = true
		ss.reply(230, "Logged in.")
		return true
	case "QUIT":
		ss.reply(221, "Goodbye.")
		return false
	case "NOOP":
		ss.reply(200, "NOOP ok.")
		return true
	}

	if !ss.loggedIn {
		ss.reply(530, "Not logged in.")
		return true
	}

	switch cmd {
	case "TYPE":
		ss.reply(200, "Type set to "+arg+".")
	case "PWD":
		ss.reply(257, fmt.Sprintf("%q is the current directory.", ss.cwd))
	case "CWD":
		ss.handleCWD(arg)
	case "EPSV":
		ss.handleEPSV()
	case "PASV":
		ss.handlePASV()
	case "LIST":
		ss.handleLIST(arg)
	case "SIZE":
		ss.handleSIZE(arg)
	case "MDTM":
		ss.handleMDTM(arg)
	case "MKD":
		ss.handleMKD(arg)
	case "DELE":
		ss.handleDELE(arg)
	case "RNFR":
		ss.handleRNFR(arg)
	case "RNTO":
		ss.handleRNTO(arg)
	case "ALLO":
		ss.reply(202, "ALLO command ignored.")
	case "STOR":
		ss.handleSTOR(arg)
	case "RETR":
		ss.handleRETR(arg)
	default:
		ss.reply(502, "Command not implemented.")
	}
	return true
}

// abs resolves p against the working directory.
func (ss *session) abs(p string) string {
	if !path.IsAbs(p) {
		p = path.Join(ss.cwd, p)
	}
	return path.Clean(p)
}

func (ss *session) stat(p string) (os.FileInfo, error) {
	return ss.server.fs.Stat(ss.abs(p))
}

// parentExists reports whether the directory holding p exists.
// afero.MemMapFs creates missing parents on its own; real servers do not.
func (ss *session) parentExists(p string) bool {
	fi, err := ss.server.fs.Stat(path.Dir(p))
	return err == nil && fi.IsDir()
}

func (ss *session) handleCWD(arg string) {
	p := ss.abs(arg)
	fi, err := ss.server.fs.Stat(p)
	if err != nil || !fi.IsDir() {
		ss.reply(550, "No such directory.")
		return
	}
	ss.cwd = p
	ss.reply(250, "Directory changed to "+p+".")
}

func (ss *session) listen() (*net.TCPAddr, bool) {
	if ss.pasv != nil {
		ss.pasv.Close()
		ss.pasv = nil
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		ss.reply(425, "Can't open passive connection.")
		return nil, false
	}
	ss.pasv = ln
	return ln.Addr().(*net.TCPAddr), true
}

func (ss *session) handleEPSV() {
	if ss.server.noEPSV {
		ss.reply(502, "EPSV not implemented.")
		return
	}
	addr, ok := ss.listen()
	if !ok {
		return
	}
	ss.reply(229, fmt.Sprintf("Entering Extended Passive Mode (|||%d|).", addr.Port))
}

func (ss *session) handlePASV() {
	addr, ok := ss.listen()
	if !ok {
		return
	}
	ip := addr.IP.To4()
	ss.reply(227, fmt.Sprintf("Entering Passive Mode (%d,%d,%d,%d,%d,%d).",
		ip[0], ip[1], ip[2], ip[3], addr.Port>>8, addr.Port&0xff))
}

// accept takes the pending data connection.
func (ss *session) accept() (net.Conn, error) {
	if ss.pasv == nil {
		return nil, errors.New("no passive listener")
	}
	defer func() {
		ss.pasv.Close()
		ss.pasv = nil
	}()

	if tl, ok := ss.pasv.(*net.TCPListener); ok {
		_ = tl.SetDeadline(time.Now().Add(dataTimeout))
	}
	conn, err := ss.pasv.Accept()
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(dataTimeout))
	return conn, nil
}

// transfer runs fn over the data connection, framed by 150 and 226.
func (ss *session) transfer(fn func(conn net.Conn) error) {
	conn, err := ss.accept()
	if err != nil {
		ss.reply(425, "Can't open data connection.")
		return
	}
	ss.reply(150, "Opening data connection.")
	err = fn(conn)
	conn.Close()
	if err != nil {
		ss.reply(426, "Transfer aborted: "+err.Error())
		return
	}
	ss.reply(226, "Transfer complete.")
}

func listLine(name string, fi os.FileInfo) string {
	return fmt.Sprintf("%s 1 owner group %d %s %s\r\n",
		fi.Mode().String(), fi.Size(), fi.ModTime().Format("Jan 02 15:04"), name)
}

func (ss *session) handleLIST(arg string) {
	// Ignore ls-style flags such as "-la".
	if strings.HasPrefix(arg, "-") {
		_, arg, _ = strings.Cut(arg, " ")
	}
	p := ss.abs(arg)

	fs := ss.server.fs
	fi, err := fs.Stat(p)
	if err != nil {
		ss.reply(550, "No such file or directory.")
		return
	}

	var lines []string
	if fi.IsDir() {
		entries, err := afero.ReadDir(fs, p)
		if err != nil {
			ss.reply(550, "Cannot read directory.")
			return
		}
		lines = append(lines, listLine(".", fi))
		if parent, err := fs.Stat(path.Dir(p)); err == nil {
			lines = append(lines, listLine("..", parent))
		}
		for _, e := range entries {
			lines = append(lines, listLine(e.Name(), e))
		}
	} else {
		lines = append(lines, listLine(path.Base(p), fi))
	}

	ss.transfer(func(conn net.Conn) error {
		for _, l := range lines {
			if _, err := io.WriteString(conn, l); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ss *session) handleSIZE(arg string) {
	fi, err := ss.stat(arg)
	if err != nil || fi.IsDir() {
		ss.reply(550, "Could not get file size.")
		return
	}
	ss.reply(213, fmt.Sprint(fi.Size()))
}

func (ss *session) handleMDTM(arg string) {
	fi, err := ss.stat(arg)
	if err != nil || fi.IsDir() {
		ss.reply(550, "Could not get modification time.")
		return
	}
	ss.reply(213, fi.ModTime().UTC().Format("20060102150405"))
}

func (ss *session) handleMKD(arg string) {
	p := ss.abs(arg)
	if _, err := ss.server.fs.Stat(p); err == nil {
		ss.reply(550, "Directory already exists.")
		return
	}
	if !ss.parentExists(p) {
		ss.reply(550, "No such parent directory.")
		return
	}
	if err := ss.server.fs.Mkdir(p, 0o755); err != nil {
		ss.reply(550, "Create directory operation failed.")
		return
	}
	ss.reply(257, fmt.Sprintf("%q created.", p))
}

func (ss *session) handleDELE(arg string) {
	p := ss.abs(arg)
	fi, err := ss.server.fs.Stat(p)
	if err != nil || fi.IsDir() {
		ss.reply(550, "No such file.")
		return
	}
	if err := ss.server.fs.Remove(p); err != nil {
		ss.reply(550, "Delete operation failed.")
		return
	}
	ss.reply(250, "File deleted.")
}

func (ss *session) handleRNFR(arg string) {
	p := ss.abs(arg)
	if _, err := ss.server.fs.Stat(p); err != nil {
		ss.renameFrom = ""
		ss.reply(550, "No such file or directory.")
		return
	}
	ss.renameFrom = p
	ss.reply(350, "Ready for RNTO.")
}

func (ss *session) handleRNTO(arg string) {
	from := ss.renameFrom
	ss.renameFrom = ""
	if from == "" {
		ss.reply(503, "Bad sequence of commands.")
		return
	}
	to := ss.abs(arg)
	if !ss.parentExists(to) {
		ss.reply(550, "No such target directory.")
		return
	}
	if err := ss.server.fs.Rename(from, to); err != nil {
		ss.reply(550, "Rename failed.")
		return
	}
	ss.reply(250, "Rename successful.")
}

func (ss *session) handleSTOR(arg string) {
	p := ss.abs(arg)
	if !ss.parentExists(p) {
		ss.reply(553, "No such directory.")
		return
	}
	ss.transfer(func(conn net.Conn) error {
		f, err := ss.server.fs.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, conn)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	})
}

func (ss *session) handleRETR(arg string) {
	p := ss.abs(arg)
	fi, err := ss.server.fs.Stat(p)
	if err != nil || fi.IsDir() {
		ss.reply(550, "No such file.")
		return
	}
	ss.transfer(func(conn net.Conn) error {
		f, err := ss.server.fs.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(conn, f)
		return err
	})
}
