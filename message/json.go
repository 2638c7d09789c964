/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package message

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/nabbar/eventdispatcher/internal/errs"
	"github.com/nabbar/eventdispatcher/internal/logging"
)

var knownTopLevelKeys = map[string]bool{
	"sent-from-server":  true,
	"sent-from-service": true,
	"server":            true,
	"service":           true,
	"command":           true,
	"parameters":        true,
}

func parseJSON(text string) (*Message, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errs.Wrap(errs.InvalidMessage, err, "invalid JSON message")
	}

	for k := range raw {
		if !knownTopLevelKeys[k] {
			// §4.2: unknown top-level keys are ignored but logged at
			// notice severity; logrus has no "notice" level, Info is
			// the closest ambient severity that is on by default.
			logging.For("message").Infof("ignoring unknown top-level JSON key %q", k)
		}
	}

	m := &Message{parameters: make(map[string]paramValue)}

	if v, ok := raw["sent-from-server"]; ok {
		s, isStr := v.(string)
		if !isStr {
			return nil, errs.New(errs.InvalidMessage, "sent-from-server must be a string")
		}
		m.sentFromServer = s
	}
	if v, ok := raw["sent-from-service"]; ok {
		s, isStr := v.(string)
		if !isStr {
			return nil, errs.New(errs.InvalidMessage, "sent-from-service must be a string")
		}
		m.sentFromService = s
	}
	if v, ok := raw["server"]; ok {
		s, isStr := v.(string)
		if !isStr {
			return nil, errs.New(errs.InvalidMessage, "server must be a string")
		}
		m.server = s
	}
	if v, ok := raw["service"]; ok {
		s, isStr := v.(string)
		if !isStr {
			return nil, errs.New(errs.InvalidMessage, "service must be a string")
		}
		m.service = s
	}

	cmd, ok := raw["command"]
	if !ok {
		return nil, errs.New(errs.InvalidMessage, "JSON message missing required \"command\"")
	}
	cmdStr, isStr := cmd.(string)
	if !isStr {
		return nil, errs.New(errs.InvalidMessage, "command must be a string")
	}
	if err := ValidateCommand(cmdStr); err != nil {
		return nil, err
	}
	m.command = cmdStr

	if v, ok := raw["parameters"]; ok {
		params, isMap := v.(map[string]interface{})
		if !isMap {
			return nil, errs.New(errs.InvalidMessage, "parameters must be a JSON object")
		}
		for name, val := range params {
			if err := ValidateParameterName(name); err != nil {
				return nil, err
			}
			pv, err := paramValueFromJSON(val)
			if err != nil {
				return nil, err
			}
			m.parameters[name] = pv
		}
	}

	return m, nil
}

func paramValueFromJSON(v interface{}) (paramValue, error) {
	switch t := v.(type) {
	case nil:
		return paramValue{raw: "", kind: kindNull}, nil
	case string:
		return paramValue{raw: t, kind: kindString}, nil
	case bool:
		if t {
			return paramValue{raw: "true", kind: kindBool}, nil
		}
		return paramValue{raw: "false", kind: kindBool}, nil
	case json.Number:
		return paramValue{raw: t.String(), kind: kindNumber}, nil
	default:
		return paramValue{}, errs.New(errs.InvalidMessage, "unsupported parameter value type %T", v)
	}
}

func emitJSON(m *Message) (string, error) {
	if err := ValidateCommand(m.command); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	wroteField := false
	writeString := func(key, val string) {
		if wroteField {
			buf.WriteByte(',')
		}
		wroteField = true
		b, _ := json.Marshal(key)
		buf.Write(b)
		buf.WriteByte(':')
		b, _ = json.Marshal(val)
		buf.Write(b)
	}

	if m.sentFromServer != "" {
		writeString("sent-from-server", m.sentFromServer)
	}
	if m.sentFromService != "" {
		writeString("sent-from-service", m.sentFromService)
	}
	if m.server != "" {
		writeString("server", m.server)
	}
	if m.service != "" {
		writeString("service", m.service)
	}
	writeString("command", m.command)

	if len(m.parameters) > 0 {
		if wroteField {
			buf.WriteByte(',')
		}
		wroteField = true
		buf.WriteString(`"parameters":{`)

		names := m.ParameterNames()
		sort.Strings(names) // deterministic emit; wire order is unspecified (§4.2)

		for i, name := range names {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, _ := json.Marshal(name)
			buf.Write(b)
			buf.WriteByte(':')

			val := m.parameters[name]
			switch val.kind {
			case kindNull:
				buf.WriteString("null")
			case kindBool:
				buf.WriteString(val.raw)
			case kindNumber:
				buf.WriteString(val.raw)
			default:
				b, _ = json.Marshal(val.raw)
				buf.Write(b)
			}
		}
		buf.WriteByte('}')
	}

	buf.WriteByte('}')
	return buf.String(), nil
}
