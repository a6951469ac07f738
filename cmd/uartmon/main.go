// Command uartmon is a host-side terminal bridge for a running QEMU
// instance's UART: it puts the controlling terminal into raw mode and
// copies bytes between stdin/stdout and a TCP connection to QEMU's
// serial socket, the way a developer would otherwise reach for `screen`
// or `minicom`.
package main

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4444", "QEMU serial socket address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "uartmon: dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	restore, err := enterRawMode(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Fprintln(os.Stderr, "uartmon: raw mode:", err)
		os.Exit(1)
	}
	defer restore()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		<-sigs
		restore()
		os.Exit(0)
	}()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(conn, os.Stdin)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(os.Stdout, conn)
		done <- struct{}{}
	}()
	<-done
}

// enterRawMode puts fd into raw mode (no line buffering, no echo, no
// signal generation from ^C) so every byte reaches the remote UART
// untouched, and returns a function that restores the prior state.
//
// golang.org/x/term does the termios manipulation; golang.org/x/sys/unix
// backs it (and is named directly here only to confirm the descriptor is
// actually a terminal before bothering term.MakeRaw with it).
func enterRawMode(fd int) (func(), error) {
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	if _, err := unix.IoctlGetTermios(fd, unix.TCGETS); err != nil {
		return nil, err
	}
	prev, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { term.Restore(fd, prev) }, nil
}
