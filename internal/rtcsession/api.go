// Package rtcsession adapts the teacher's internal/webrtc package (codec
// table, API construction, incoming/outgoing track shape) to this
// plugin's two peer-connection roles: a capture leg that receives audio
// and video from a publisher, and a replay leg that sends a recorded
// capture back out. It is the concrete implementation of the "host
// gateway" collaborator spec.md §1 treats as external: in this rework
// there is no separate Janus core, so the plugin drives pion/webrtc
// directly.
package rtcsession

import (
	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

func stringInSlice(a string, list []string) bool {
	for _, b := range list {
		if b == a {
			return true
		}
	}
	return false
}

// videoCodecs mirrors spec.md §3's video codec set, each at a distinct
// local default payload type; the wire payload type actually sent/
// received for a given capture is whatever the offer/answer negotiates,
// per internal/catalog.PayloadType.
var videoCodecs = []webrtc.RTPCodecParameters{
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0"},
		PayloadType:        98,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 100,
	},
}

// audioCodecs mirrors spec.md §3's fixed and dynamic audio codecs.
var audioCodecs = []webrtc.RTPCodecParameters{
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   48000,
			Channels:    2,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeG722, ClockRate: 8000},
		PayloadType:        9,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMU, ClockRate: 8000},
		PayloadType:        0,
	},
	{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypePCMA, ClockRate: 8000},
		PayloadType:        8,
	},
}

// APIConfig configures NewAPI, mirroring the ICE knobs the teacher's
// APIConf exposes.
type APIConfig struct {
	ICEInterfaces     []string
	ICEHostNAT1To1IPs []string
	ICEUDPMux         ice.UDPMux
	ICETCPMux         ice.TCPMux
}

// NewAPI builds a pion/webrtc API with this plugin's codec table and the
// default interceptor chain (NACK, RTCP reports, twcc) registered, so
// REMB/PLI/FIR sent by internal/rtcpfeedback actually reach the publisher.
func NewAPI(conf APIConfig) (*webrtc.API, error) {
	settingsEngine := webrtc.SettingEngine{}

	if len(conf.ICEInterfaces) != 0 {
		settingsEngine.SetInterfaceFilter(func(iface string) bool {
			return stringInSlice(iface, conf.ICEInterfaces)
		})
	}
	if len(conf.ICEHostNAT1To1IPs) != 0 {
		settingsEngine.SetNAT1To1IPs(conf.ICEHostNAT1To1IPs, webrtc.ICECandidateTypeHost)
	}
	if conf.ICEUDPMux != nil {
		settingsEngine.SetICEUDPMux(conf.ICEUDPMux)
	}
	if conf.ICETCPMux != nil {
		settingsEngine.SetICETCPMux(conf.ICETCPMux)
		settingsEngine.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeTCP4})
	}

	mediaEngine := &webrtc.MediaEngine{}
	for _, codec := range videoCodecs {
		if err := mediaEngine.RegisterCodec(codec, webrtc.RTPCodecTypeVideo); err != nil {
			return nil, err
		}
	}
	for _, codec := range audioCodecs {
		if err := mediaEngine.RegisterCodec(codec, webrtc.RTPCodecTypeAudio); err != nil {
			return nil, err
		}
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(settingsEngine),
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	), nil
}

// mimeTypeForCodec maps spec.md §3's codec tags onto pion's MIME type
// constants, for building an outgoing replay track.
func mimeTypeForCodec(codec string, isVideo bool) (string, uint32) {
	switch codec {
	case "opus":
		return webrtc.MimeTypeOpus, 48000
	case "pcmu":
		return webrtc.MimeTypePCMU, 8000
	case "pcma":
		return webrtc.MimeTypePCMA, 8000
	case "g722":
		return webrtc.MimeTypeG722, 8000
	case "vp9":
		return webrtc.MimeTypeVP9, 90000
	case "h264":
		return webrtc.MimeTypeH264, 90000
	default:
		if isVideo {
			return webrtc.MimeTypeVP8, 90000
		}
		return webrtc.MimeTypeOpus, 48000
	}
}
