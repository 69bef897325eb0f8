package jmxtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/joeycumines/jmxsh/internal/jmx"
)

// Sample mbean names registered by NewSampleServer.
const (
	MemoryMBean    = "java.lang:type=Memory"
	RuntimeMBean   = "java.lang:type=Runtime"
	ThreadingMBean = "java.lang:type=Threading"
	DelegateMBean  = "JMImplementation:type=MBeanServerDelegate"
	SampleMBean    = "jmxsh:type=Sample"
)

func attr(name, typ string, writable bool) jmx.AttributeInfo {
	return jmx.AttributeInfo{Name: name, Type: typ, Readable: true, Writable: writable, IsGetter: typ == "boolean"}
}

func param(name, typ string) jmx.ParameterInfo {
	return jmx.ParameterInfo{Name: name, Type: typ}
}

// NewSampleServer returns a server resembling a small platform mbean server
// plus a jmxsh:type=Sample mbean. The sample mbean has three attributes
// (Counter, Name, Ratio) and two operations (add, echo) so menu numbering is
// easy to reason about.
func NewSampleServer() *Server {
	s := NewServer()

	s.Register(MemoryMBean, &MBean{
		Info: jmx.MBeanInfo{
			ClassName: "sun.management.MemoryImpl",
			Attributes: []jmx.AttributeInfo{
				attr("HeapMemoryUsage", "javax.management.openmbean.CompositeData", false),
				attr("ObjectPendingFinalizationCount", "int", false),
				attr("Verbose", "boolean", true),
			},
			Operations: []jmx.OperationInfo{
				{Name: "gc", ReturnType: "void"},
			},
		},
		Values: map[string]any{
			"HeapMemoryUsage": map[string]any{
				"committed": json.Number("16252928"),
				"init":      json.Number("16777216"),
				"max":       json.Number("259522560"),
				"used":      json.Number("1589160"),
			},
			"ObjectPendingFinalizationCount": json.Number("0"),
			"Verbose":                        false,
		},
	})

	s.Register(RuntimeMBean, &MBean{
		Info: jmx.MBeanInfo{
			ClassName: "sun.management.RuntimeImpl",
			Attributes: []jmx.AttributeInfo{
				attr("InputArguments", "[Ljava.lang.String;", false),
				attr("Uptime", "long", false),
				attr("VmName", "java.lang.String", false),
			},
		},
		Values: map[string]any{
			"InputArguments": []any{"-Xmx256m", "-Dcom.sun.management.jmxremote"},
			"Uptime":         json.Number("123456"),
			"VmName":         "OpenJDK 64-Bit Server VM",
		},
	})

	s.Register(ThreadingMBean, &MBean{
		Info: jmx.MBeanInfo{
			ClassName: "sun.management.ThreadImpl",
			Attributes: []jmx.AttributeInfo{
				attr("ThreadCount", "int", false),
				attr("ThreadCpuTimeEnabled", "boolean", true),
			},
			Operations: []jmx.OperationInfo{
				{Name: "getThreadCpuTime", ReturnType: "long", Params: []jmx.ParameterInfo{param("p0", "long")}},
			},
		},
		Values: map[string]any{
			"ThreadCount":          json.Number("12"),
			"ThreadCpuTimeEnabled": true,
		},
		Ops: map[string]OpFunc{
			"getThreadCpuTime": func(args []any) (any, error) { return json.Number("1000"), nil },
		},
	})

	s.Register(DelegateMBean, &MBean{
		Info: jmx.MBeanInfo{
			ClassName: "javax.management.MBeanServerDelegate",
			Attributes: []jmx.AttributeInfo{
				attr("MBeanServerId", "java.lang.String", false),
			},
		},
		Values: map[string]any{"MBeanServerId": "localhost_1"},
	})

	s.Register(SampleMBean, &MBean{
		Info: jmx.MBeanInfo{
			ClassName: "jmxsh.test.Sample",
			Attributes: []jmx.AttributeInfo{
				attr("Counter", "int", true),
				attr("Name", "java.lang.String", true),
				attr("Ratio", "double", false),
			},
			Operations: []jmx.OperationInfo{
				{Name: "add", ReturnType: "int", Params: []jmx.ParameterInfo{param("a", "int"), param("b", "int")}},
				{Name: "echo", ReturnType: "java.lang.String", Params: []jmx.ParameterInfo{param("text", "java.lang.String")}},
			},
		},
		Values: map[string]any{
			"Counter": int32(0),
			"Name":    "sample",
			"Ratio":   0.5,
		},
		Ops: map[string]OpFunc{
			"add": func(args []any) (any, error) {
				a, aok := args[0].(int32)
				b, bok := args[1].(int32)
				if !aok || !bok {
					return nil, fmt.Errorf("add: unexpected argument types %T, %T", args[0], args[1])
				}
				return a + b, nil
			},
			"echo": func(args []any) (any, error) {
				str, ok := args[0].(string)
				if !ok {
					return nil, errors.New("echo: expected a string")
				}
				return strings.ToUpper(str), nil
			},
		},
	})

	return s
}
