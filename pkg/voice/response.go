// Package voice models the instruction document returned for one webhook
// turn and serializes it into the telephony provider's markup.
package voice

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// Response is the single instruction document produced for one webhook turn.
// Verbs accumulate in order; Render emits the provider markup.
type Response struct {
	verbs []any
}

// New returns an empty instruction document.
func New() *Response {
	return &Response{}
}

// Say speaks text to the caller.
func (r *Response) Say(text string) *Response {
	if text != "" {
		r.verbs = append(r.verbs, sayVerb{Text: text})
	}

	return r
}

// Play plays a pre-rendered audio asset.
func (r *Response) Play(url string) *Response {
	if url != "" {
		r.verbs = append(r.verbs, playVerb{URL: url})
	}

	return r
}

// GatherOptions bounds a digit-collection instruction.
type GatherOptions struct {
	NumDigits int
	Timeout   int // seconds
	Action    string
	// Prompt played inside the gather; exactly one of Text/AudioURL is used.
	Text     string
	AudioURL string
}

// Gather collects digits, playing the prompt while listening.
func (r *Response) Gather(opts GatherOptions) *Response {
	g := gatherVerb{
		NumDigits: opts.NumDigits,
		Timeout:   opts.Timeout,
		Action:    opts.Action,
		Method:    "POST",
	}

	if opts.AudioURL != "" {
		g.Play = &playVerb{URL: opts.AudioURL}
	} else if opts.Text != "" {
		g.Say = &sayVerb{Text: opts.Text}
	}

	r.verbs = append(r.verbs, g)

	return r
}

// DialOptions configures an outbound leg.
type DialOptions struct {
	CallerID string
	Timeout  int
	Action   string
}

// Dial bridges the call to a destination number.
func (r *Response) Dial(number string, opts DialOptions) *Response {
	r.verbs = append(r.verbs, dialVerb{
		Number:   number,
		CallerID: opts.CallerID,
		Timeout:  opts.Timeout,
		Action:   opts.Action,
	})

	return r
}

// RecordOptions bounds a recording instruction.
type RecordOptions struct {
	Action     string
	MaxLength  int
	Transcribe bool
	PlayBeep   bool
}

// Record records the caller.
func (r *Response) Record(opts RecordOptions) *Response {
	r.verbs = append(r.verbs, recordVerb{
		Action:     opts.Action,
		Method:     "POST",
		MaxLength:  opts.MaxLength,
		Transcribe: strconv.FormatBool(opts.Transcribe),
		PlayBeep:   strconv.FormatBool(opts.PlayBeep),
	})

	return r
}

// Enqueue places the caller into a named queue.
func (r *Response) Enqueue(queue, waitURL string) *Response {
	r.verbs = append(r.verbs, enqueueVerb{Queue: queue, WaitURL: waitURL})

	return r
}

// Redirect hands control to another instruction endpoint.
func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, redirectVerb{URL: url, Method: "POST"})

	return r
}

// Sms sends a text message during the call.
func (r *Response) Sms(message, to, from string) *Response {
	r.verbs = append(r.verbs, smsVerb{Message: message, To: to, From: from})

	return r
}

// Hangup terminates the call.
func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, hangupVerb{})

	return r
}

// Empty reports whether no verb has been added yet.
func (r *Response) Empty() bool {
	return len(r.verbs) == 0
}

// Render serializes the document into provider markup.
func (r *Response) Render() ([]byte, error) {
	doc := responseDoc{Verbs: r.verbs}

	var buf bytes.Buffer

	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")

	if err := enc.Encode(doc); err != nil {
		return nil, err
	}

	if err := enc.Flush(); err != nil {
		return nil, err
	}

	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

type responseDoc struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type playVerb struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type gatherVerb struct {
	XMLName   xml.Name  `xml:"Gather"`
	NumDigits int       `xml:"numDigits,attr,omitempty"`
	Timeout   int       `xml:"timeout,attr,omitempty"`
	Action    string    `xml:"action,attr,omitempty"`
	Method    string    `xml:"method,attr,omitempty"`
	Say       *sayVerb  `xml:",omitempty"`
	Play      *playVerb `xml:",omitempty"`
}

type dialVerb struct {
	XMLName  xml.Name `xml:"Dial"`
	CallerID string   `xml:"callerId,attr,omitempty"`
	Timeout  int      `xml:"timeout,attr,omitempty"`
	Action   string   `xml:"action,attr,omitempty"`
	Number   string   `xml:",chardata"`
}

type recordVerb struct {
	XMLName    xml.Name `xml:"Record"`
	Action     string   `xml:"action,attr,omitempty"`
	Method     string   `xml:"method,attr,omitempty"`
	MaxLength  int      `xml:"maxLength,attr,omitempty"`
	Transcribe string   `xml:"transcribe,attr,omitempty"`
	PlayBeep   string   `xml:"playBeep,attr,omitempty"`
}

type enqueueVerb struct {
	XMLName xml.Name `xml:"Enqueue"`
	WaitURL string   `xml:"waitUrl,attr,omitempty"`
	Queue   string   `xml:",chardata"`
}

type redirectVerb struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type smsVerb struct {
	XMLName xml.Name `xml:"Sms"`
	To      string   `xml:"to,attr,omitempty"`
	From    string   `xml:"from,attr,omitempty"`
	Message string   `xml:",chardata"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}
