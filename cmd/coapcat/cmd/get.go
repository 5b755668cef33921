/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cmd

import (
	"fmt"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebookincubator/coap/coap"
	"github.com/facebookincubator/coap/txqueue"
)

var (
	getNonConfirmable bool
	getPayload        string
	getMethod         string
)

func init() {
	RootCmd.AddCommand(getCmd)
	getCmd.Flags().BoolVarP(&getNonConfirmable, "non-confirmable", "n", false, "send a NON request instead of CON")
	getCmd.Flags().StringVarP(&getPayload, "payload", "p", "", "request payload")
	getCmd.Flags().StringVarP(&getMethod, "method", "m", "GET", "request method: GET, POST, PUT or DELETE")
}

var getCmd = &cobra.Command{
	Use:   "get <host:port> <path>",
	Short: "Send a single CoAP request over UDP and print the response",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := runGet(args[0], args[1]); err != nil {
			log.Fatal(err)
		}
	},
}

func methodCode(name string) (coap.Code, error) {
	switch strings.ToUpper(name) {
	case "GET":
		return coap.GET, nil
	case "POST":
		return coap.POST, nil
	case "PUT":
		return coap.PUT, nil
	case "DELETE":
		return coap.DELETE, nil
	default:
		return 0, fmt.Errorf("coapcat: unknown method %q", name)
	}
}

func uriPathOptions(path string) coap.Options {
	var opts coap.Options
	for _, seg := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		if seg == "" {
			continue
		}
		opts = opts.Add(coap.OptionURIPath, []byte(seg))
	}
	return opts
}

// runGet sends one request and waits for its response, retrying on
// the RFC 7252 section 4.8 schedule for a CON request, the same
// backoff math the endpoint package's retransmission queue uses.
func runGet(addr, path string) error {
	code, err := methodCode(getMethod)
	if err != nil {
		return err
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("coapcat: resolving %q: %w", addr, err)
	}
	if raddr.Port == 0 {
		raddr.Port = coap.DefaultPort
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("coapcat: dialing %q: %w", addr, err)
	}
	defer conn.Close()

	rand := coap.CryptoRand{}
	req := &coap.Message{
		Type:      coap.CON,
		Code:      code,
		MessageID: rand.Uint16(),
		Token:     rand.Token(4),
		Options:   uriPathOptions(path),
		Payload:   []byte(getPayload),
	}
	if getNonConfirmable {
		req.Type = coap.NON
	}

	buf, err := coap.MarshalDatagram(nil, req)
	if err != nil {
		return fmt.Errorf("coapcat: encoding request: %w", err)
	}

	backoff := txqueue.NewBackoff(0, 0, 0)
	timeout := backoff.Initial(rand)
	resp, err := sendAndAwait(conn, buf, req, backoff, timeout, rand)
	if err != nil {
		return err
	}
	printResponse(resp)
	return nil
}

func sendAndAwait(conn *net.UDPConn, buf []byte, req *coap.Message, backoff txqueue.Backoff, timeout coap.Tick, rand coap.Rand) (*coap.Message, error) {
	readBuf := make([]byte, coap.DefaultMTU)
	for attempt := 0; ; attempt++ {
		if _, err := conn.Write(buf); err != nil {
			return nil, fmt.Errorf("coapcat: sending request: %w", err)
		}
		if err := conn.SetReadDeadline(time.Now().Add(timeout.ToDuration())); err != nil {
			return nil, fmt.Errorf("coapcat: setting read deadline: %w", err)
		}

		n, err := conn.Read(readBuf)
		if err == nil {
			resp, err := coap.UnmarshalDatagram(readBuf[:n])
			if err != nil {
				return nil, fmt.Errorf("coapcat: decoding response: %w", err)
			}
			return resp, nil
		}
		if req.Type != coap.CON || attempt >= backoff.MaxRetransmit() {
			return nil, fmt.Errorf("coapcat: no response from peer: %w", err)
		}
		timeout = backoff.Next(timeout)
		log.Debugf("coapcat: retry %d after timeout, next backoff %s", attempt+1, timeout.ToDuration())
	}
}

func printResponse(m *coap.Message) {
	fmt.Printf("%s\n", m.Code)
	if len(m.Payload) > 0 {
		fmt.Printf("%s\n", m.Payload)
	}
}
