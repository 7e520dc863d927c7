package catalog

import (
	"fmt"

	"github.com/pion/sdp/v3"
)

// codecRTPMap names the SDP rtpmap clock rate/channel count per codec,
// enough to describe any capture this plugin writes (spec.md §3's fixed
// codec table).
func codecRTPMap(codec string) string {
	switch codec {
	case "opus":
		return "opus/48000/2"
	case "pcmu":
		return "PCMU/8000"
	case "pcma":
		return "PCMA/8000"
	case "g722":
		return "G722/8000"
	case "vp8":
		return "VP8/90000"
	case "vp9":
		return "VP9/90000"
	case "h264":
		return "H264/90000"
	default:
		return codec + "/90000"
	}
}

// OfferSDP builds the "sendonly" offer this plugin presents when replaying
// e: one audio and/or video m-line depending on which media the capture
// has, a stable payload type per PayloadType, and no data channel (the
// replay path never needs one).
func OfferSDP(e *Entry) (*sdp.SessionDescription, error) {
	if !e.HasAudio() && !e.HasVideo() {
		return nil, fmt.Errorf("catalog: entry %s has no media to offer", e.ID)
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      uint64(e.Date.Unix()),
			SessionVersion: uint64(e.Date.Unix()),
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: sdp.SessionName(e.Name),
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	if e.HasAudio() {
		pt := PayloadType(e.AudioCodec, false)
		desc.MediaDescriptions = append(desc.MediaDescriptions, &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   "audio",
				Port:    sdp.RangedPort{Value: 9},
				Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
				Formats: []string{fmt.Sprintf("%d", pt)},
			},
			ConnectionInformation: &sdp.ConnectionInformation{
				NetworkType: "IN",
				AddressType: "IP4",
				Address:     &sdp.Address{Address: "0.0.0.0"},
			},
			Attributes: []sdp.Attribute{
				sdp.NewAttribute("rtpmap", fmt.Sprintf("%d %s", pt, codecRTPMap(e.AudioCodec))),
				sdp.NewPropertyAttribute("sendonly"),
				sdp.NewAttribute("mid", "0"),
			},
		})
	}

	if e.HasVideo() {
		pt := PayloadType(e.VideoCodec, true)
		desc.MediaDescriptions = append(desc.MediaDescriptions, &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   "video",
				Port:    sdp.RangedPort{Value: 9},
				Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
				Formats: []string{fmt.Sprintf("%d", pt)},
			},
			ConnectionInformation: &sdp.ConnectionInformation{
				NetworkType: "IN",
				AddressType: "IP4",
				Address:     &sdp.Address{Address: "0.0.0.0"},
			},
			Attributes: []sdp.Attribute{
				sdp.NewAttribute("rtpmap", fmt.Sprintf("%d %s", pt, codecRTPMap(e.VideoCodec))),
				sdp.NewPropertyAttribute("sendonly"),
				sdp.NewAttribute("mid", fmt.Sprintf("%d", len(desc.MediaDescriptions))),
			},
		})
	}

	return desc, nil
}

// OfferSDPString renders OfferSDP's result to wire text.
func OfferSDPString(e *Entry) (string, error) {
	desc, err := OfferSDP(e)
	if err != nil {
		return "", err
	}
	b, err := desc.Marshal()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
